// Package watch implements the watch command, the real-time monitoring mode.
package watch

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ayane-dev/zombiewatch-go/internal/arbiter"
	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/datastore"
	"github.com/ayane-dev/zombiewatch-go/internal/detector"
	"github.com/ayane-dev/zombiewatch-go/internal/diskmanager"
	"github.com/ayane-dev/zombiewatch-go/internal/frame"
	"github.com/ayane-dev/zombiewatch-go/internal/governor"
	"github.com/ayane-dev/zombiewatch-go/internal/httpcontroller"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
	"github.com/ayane-dev/zombiewatch-go/internal/notification"
	"github.com/ayane-dev/zombiewatch-go/internal/observability"
	"github.com/ayane-dev/zombiewatch-go/internal/reaction"
	"github.com/ayane-dev/zombiewatch-go/internal/voice"
	"github.com/ayane-dev/zombiewatch-go/internal/watcher"
)

// Command returns the watch subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Monitor the screen for threats in real time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	if settings.Main.Log.Enabled {
		_, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "main", level)
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	det, err := detector.NewTFLiteDetector(&settings.Detector)
	if err != nil {
		return err
	}
	defer det.Close()

	var classifier detector.Classifier
	if settings.Classifier.Enabled {
		tfc, err := detector.NewTFLiteClassifier(&settings.Classifier)
		if err != nil {
			logging.Warn("scene classifier unavailable, continuing without it", "error", err)
		} else {
			classifier = tfc
			defer tfc.Close()
		}
	}

	notifier := notification.Initialize(settings.Notification.MaxStored)

	var mqttPublisher *notification.MqttPublisher
	if settings.Notification.MQTT.Enabled {
		mqttPublisher, err = notification.NewMqttPublisher(&settings.Notification.MQTT, settings.Main.Name)
		if err != nil {
			logging.Warn("MQTT publisher unavailable, continuing without it", "error", err)
		} else {
			mqttPublisher.Start(ctx, notifier)
			defer mqttPublisher.Close()
		}
	}

	var store datastore.Store
	if settings.Output.SQLite.Enabled {
		sqliteStore, err := datastore.NewSQLiteStore(&settings.Output)
		if err != nil {
			return err
		}
		store = sqliteStore
		defer func() { _ = sqliteStore.Close() }()
	}

	var textLog *datastore.TextLog
	if settings.Output.Log.Enabled {
		textLog, err = datastore.NewTextLog(settings.Output.Log.Path)
		if err != nil {
			return err
		}
	}

	pool := reaction.NewPool(0)
	pool.Start(ctx, 0)
	defer pool.Wait()

	dispatcher := reaction.NewDispatcher(&reaction.Config{
		Pool:              pool,
		Arbiter:           arbiter.New(&settings.Notification),
		Speech:            voice.NewSpeaker(&settings.Voice, voice.NewMalgoPlayer()),
		Notifier:          notifier,
		Store:             store,
		TextLog:           textLog,
		Metrics:           metrics,
		PresenceThreshold: settings.Classifier.PresenceThreshold,
		FollowupDelayMs:   settings.Watcher.FollowupDelayMs,
	})

	gov := governor.New(&settings.Watcher.Performance)

	w := watcher.New(&watcher.Config{
		Settings:   settings,
		Provider:   frame.NewScreenProvider(),
		Detector:   det,
		Classifier: classifier,
		Governor:   gov,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	})

	if settings.Watcher.Artifacts.Enabled {
		diskmanager.NewSweeper(&settings.Watcher.Artifacts).Start(ctx)
	}

	w.Start(ctx)
	defer w.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if settings.WebServer.Enabled {
		server := httpcontroller.New(settings, w, dispatcher, notifier, store, metrics)
		g.Go(func() error { return server.Start(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	logging.Info("zombiewatch running", "name", settings.Main.Name)
	return g.Wait()
}
