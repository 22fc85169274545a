// Package watcher runs the monitoring loop: capture a frame, run detection
// and scene classification, confirm against the detection history, and hand
// confirmed detections to the reaction dispatcher. The loop adapts its
// cadence through the performance governor.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/detector"
	"github.com/ayane-dev/zombiewatch-go/internal/frame"
	"github.com/ayane-dev/zombiewatch-go/internal/governor"
	"github.com/ayane-dev/zombiewatch-go/internal/history"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
	"github.com/ayane-dev/zombiewatch-go/internal/observability"
	"github.com/ayane-dev/zombiewatch-go/internal/reaction"
)

const (
	captureBackoff   = time.Second
	iterationBackoff = 2 * time.Second
	sourceName       = "watcher"
)

// Watcher owns the monitoring loop lifecycle.
type Watcher struct {
	settings   *conf.Settings
	provider   frame.CaptureProvider
	detect     detector.Detector
	classify   detector.Classifier
	governor   *governor.Governor
	history    *history.Tracker
	dispatcher *reaction.Dispatcher
	metrics    *observability.Metrics

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	loopDone   chan struct{}
	dispatches sync.WaitGroup

	frameIndex uint64

	log *slog.Logger
}

// Config wires the watcher's collaborators.
type Config struct {
	Settings   *conf.Settings
	Provider   frame.CaptureProvider
	Detector   detector.Detector
	Classifier detector.Classifier // nil when the scene classifier is disabled
	Governor   *governor.Governor
	Dispatcher *reaction.Dispatcher
	Metrics    *observability.Metrics // nil disables metrics
}

// New creates a watcher.
func New(cfg *Config) *Watcher {
	hist := cfg.Settings.Watcher.History
	return &Watcher{
		settings:   cfg.Settings,
		provider:   cfg.Provider,
		detect:     cfg.Detector,
		classify:   cfg.Classifier,
		governor:   cfg.Governor,
		history:    history.NewTracker(hist.Size, hist.RequiredDetections),
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		log:        logging.ForService("watcher"),
	}
}

// Start launches the monitoring loop. Calling Start while running is a
// no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.loopDone = make(chan struct{})

	w.log.Info("monitoring started",
		"display", w.settings.Watcher.Display,
		"history_size", w.settings.Watcher.History.Size)

	go w.run(loopCtx)
}

// Stop terminates the loop and blocks until it and all in-flight reaction
// dispatches have finished.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	done := w.loopDone
	w.mu.Unlock()

	cancel()
	<-done
	w.dispatches.Wait()

	w.history.Reset()
	w.log.Info("monitoring stopped")
}

// IsRunning reports whether the loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the monitoring loop body.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.loopDone)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.iterate(ctx); err != nil {
			w.log.Error("monitoring iteration failed", "error", err)
			if !sleepCtx(ctx, iterationBackoff) {
				return
			}
			continue
		}

		if !sleepCtx(ctx, w.governor.Profile().Interval) {
			return
		}
	}
}

// iterate runs one loop pass: tune, maybe skip, capture, infer, confirm,
// dispatch.
func (w *Watcher) iterate(ctx context.Context) error {
	now := time.Now()
	if w.governor.CheckDue(now) {
		w.governor.Sample(now)
		if w.metrics != nil {
			if w.governor.Degraded() {
				w.metrics.GovernorDegraded.Set(1)
			} else {
				w.metrics.GovernorDegraded.Set(0)
			}
		}
	}

	profile := w.governor.Profile()

	w.frameIndex++
	if profile.SkipRatio > 1 && w.frameIndex%uint64(profile.SkipRatio) != 0 {
		if w.metrics != nil {
			w.metrics.FramesSkipped.Inc()
		}
		return nil
	}

	captured, err := w.provider.Capture(w.settings.Watcher.Display, profile.ResizeFactor)
	if err != nil {
		if w.metrics != nil {
			w.metrics.CaptureErrors.Inc()
		}
		w.log.Warn("screen capture failed", "error", err)
		sleepCtx(ctx, captureBackoff)
		return nil
	}

	start := time.Now()
	detections, err := w.detect.Detect(captured)
	if err != nil {
		// A failed inference counts as a zero-detection frame.
		w.log.Warn("inference failed", "error", err)
		w.history.Record(0)
		return nil
	}
	inferenceTime := time.Since(start)

	// The scene classifier is best effort; a failure falls back to the
	// detector-only verdict.
	sceneProbability := 0.0
	if w.classify != nil {
		sceneProbability, err = w.classify.Classify(captured)
		if err != nil {
			w.log.Warn("scene classification failed", "error", err)
			sceneProbability = 0
		}
	}

	count := len(detections)
	if w.metrics != nil {
		w.metrics.FramesProcessed.Inc()
		w.metrics.InferenceDuration.Observe(inferenceTime.Seconds())
		w.metrics.DetectionCount.Observe(float64(count))
	}
	if w.settings.Watcher.ProcessingTime {
		w.log.Debug("frame processed",
			"count", count,
			"inference_ms", inferenceTime.Milliseconds(),
			"scene_probability", sceneProbability)
	}

	presence := count == 0 && sceneProbability > w.settings.Classifier.PresenceThreshold

	// Presence verdicts ride on the same confirmation window: the classifier
	// can extend an alert the detector just lost, but cannot start one alone.
	if !w.history.Record(count) {
		return nil
	}
	if count == 0 && !presence {
		return nil
	}

	dc := &detector.Context{
		Count:            count,
		MaxConfidence:    detector.MaxConfidence(detections),
		SceneProbability: sceneProbability,
		ScenePresence:    presence,
		Distance:         detector.EstimateDistance(detections, captured.Width(), captured.Height()),
		Source:           sourceName,
		CapturedAt:       captured.CapturedAt,
		FrameWidth:       captured.Width(),
		FrameHeight:      captured.Height(),
	}

	if w.settings.Watcher.Artifacts.Enabled && count > 0 {
		dc.ClipPath = w.saveArtifact(captured, detections)
	}

	w.dispatches.Add(1)
	go func() {
		defer w.dispatches.Done()
		if err := w.dispatcher.Dispatch(ctx, dc); err != nil && ctx.Err() == nil {
			w.log.Error("reaction dispatch failed", "error", err)
		}
	}()

	return nil
}

// saveArtifact writes an annotated copy of the frame. Failures are logged
// and do not block the reaction path.
func (w *Watcher) saveArtifact(captured *frame.Frame, detections []detector.Detection) string {
	boxes := make([]frame.Box, 0, len(detections))
	for _, d := range detections {
		boxes = append(boxes, frame.Box{Rect: d.Box, Confidence: d.Confidence})
	}

	annotated := frame.Annotate(captured, boxes)
	path, err := frame.Save(annotated, w.settings.Watcher.Artifacts.Path, captured.CapturedAt, len(detections))
	if err != nil {
		w.log.Warn("could not save annotated frame", "error", err)
		return ""
	}
	return path
}

// sleepCtx sleeps for d or until the context is cancelled. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
