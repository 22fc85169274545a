package main

import (
	"log"
	"os"

	"github.com/ayane-dev/zombiewatch-go/cmd"
	"github.com/ayane-dev/zombiewatch-go/internal/conf"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
