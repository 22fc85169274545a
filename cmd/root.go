// Package cmd wires the CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ayane-dev/zombiewatch-go/cmd/watch"
	"github.com/ayane-dev/zombiewatch-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zombiewatch",
		Short: "ZombieWatch screen threat monitor",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(watch.Command(settings))

	return rootCmd
}

// setupFlags defines global flags and binds them to viper.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Detector.ModelPath, "model", viper.GetString("detector.modelpath"), "Path to the detection model")
	rootCmd.PersistentFlags().IntVar(&settings.Watcher.Display, "display", viper.GetInt("watcher.display"), "Display index to capture")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("detector.modelpath", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("watcher.display", rootCmd.PersistentFlags().Lookup("display"))
}
