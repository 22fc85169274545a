package reaction

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayane-dev/zombiewatch-go/internal/arbiter"
	"github.com/ayane-dev/zombiewatch-go/internal/datastore"
	"github.com/ayane-dev/zombiewatch-go/internal/detector"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
	"github.com/ayane-dev/zombiewatch-go/internal/notification"
	"github.com/ayane-dev/zombiewatch-go/internal/observability"
	"github.com/ayane-dev/zombiewatch-go/internal/voice"
)

const defaultFollowupDelay = 500 * time.Millisecond

// Speech abstracts the voice speaker for tests.
type Speech interface {
	Enabled() bool
	Prepare(ctx context.Context, text, severity string) (*voice.Utterance, error)
	Play(ctx context.Context, u *voice.Utterance) error
}

// Dispatcher fans a confirmed detection out into the three reaction tiers.
// Immediate and followup actions run on the worker pool; the confirm-tier
// spoken alert runs inline under an arbiter lease so playback and lease
// lifetime stay coupled.
type Dispatcher struct {
	pool     *Pool
	arbiter  *arbiter.Arbiter
	speech   Speech
	notifier *notification.Service
	store    datastore.Store
	textLog  *datastore.TextLog
	metrics  *observability.Metrics

	presenceThreshold float64
	followupDelay     time.Duration

	log *slog.Logger
}

// Config wires the dispatcher's collaborators. Nil fields disable the
// corresponding output.
type Config struct {
	Pool              *Pool
	Arbiter           *arbiter.Arbiter
	Speech            Speech
	Notifier          *notification.Service
	Store             datastore.Store
	TextLog           *datastore.TextLog
	Metrics           *observability.Metrics
	PresenceThreshold float64
	FollowupDelayMs   int
}

// NewDispatcher creates a dispatcher from the config.
func NewDispatcher(cfg *Config) *Dispatcher {
	delay := defaultFollowupDelay
	if cfg.FollowupDelayMs > 0 {
		delay = time.Duration(cfg.FollowupDelayMs) * time.Millisecond
	}

	return &Dispatcher{
		pool:              cfg.Pool,
		arbiter:           cfg.Arbiter,
		speech:            cfg.Speech,
		notifier:          cfg.Notifier,
		store:             cfg.Store,
		textLog:           cfg.TextLog,
		metrics:           cfg.Metrics,
		presenceThreshold: cfg.PresenceThreshold,
		followupDelay:     delay,
		log:               logging.ForService("reaction"),
	}
}

// Dispatch runs all three reaction tiers for a confirmed detection. It
// returns once every tier has finished; a failing tier does not stop the
// others mid-flight but its error is reported.
func (d *Dispatcher) Dispatch(ctx context.Context, dc *detector.Context) error {
	severity := SeverityFor(dc.Count, dc.SceneProbability, d.presenceThreshold)
	if severity == SeverityNone {
		return nil
	}

	if d.metrics != nil {
		d.metrics.DetectionsConfirmed.WithLabelValues(severity).Inc()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.immediate(gctx, severity, dc) })
	g.Go(func() error { return d.followup(gctx, severity, dc) })
	g.Go(func() error { return d.confirm(gctx, severity, dc) })

	return g.Wait()
}

// immediate fires the first-tier reactions for counted detections. The spoken
// cue bypasses the arbiter and may overlap other audio.
func (d *Dispatcher) immediate(ctx context.Context, severity string, dc *detector.Context) error {
	if dc.Count == 0 {
		return nil
	}

	actions := []Action{
		NewLogAction(severity),
		&PushAction{Service: d.notifier, Tier: TierImmediate, Severity: severity},
		&DatastoreAction{Store: d.store, TextLog: d.textLog, Severity: severity},
	}

	for _, action := range actions {
		if err := d.pool.Enqueue(action, dc); err != nil {
			return err
		}
	}

	d.speak(ctx, TierImmediate, severity, dc)
	return nil
}

// followup fires the second-tier reactions after the configured delay.
func (d *Dispatcher) followup(ctx context.Context, severity string, dc *detector.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.followupDelay):
	}

	if err := d.pool.Enqueue(&PushAction{
		Service:  d.notifier,
		Tier:     TierFollowup,
		Severity: severity,
	}, dc); err != nil {
		return err
	}

	d.speak(ctx, TierFollowup, severity, dc)
	return nil
}

// speak renders and plays a tier cue outside the arbiter lease. Failures are
// logged, not propagated.
func (d *Dispatcher) speak(ctx context.Context, tier, severity string, dc *detector.Context) {
	if d.speech == nil || !d.speech.Enabled() {
		return
	}
	text := MessageFor(tier, severity, dc.Count, dc.Distance)
	if text == "" {
		return
	}

	utterance, err := d.speech.Prepare(ctx, text, severity)
	if err != nil {
		d.log.Warn("tier cue synthesis failed", "tier", tier, "error", err)
		return
	}
	if utterance == nil {
		return
	}
	if err := d.speech.Play(ctx, utterance); err != nil {
		d.log.Warn("tier cue playback failed", "tier", tier, "error", err)
	}
}

// confirm runs the arbiter-gated third tier: under a granted lease it
// publishes the confirm push event and plays the full utterance. A denied
// lease is a normal outcome, not an error.
func (d *Dispatcher) confirm(ctx context.Context, severity string, dc *detector.Context) error {
	if d.arbiter == nil {
		return nil
	}

	category := ArbiterCategory(severity)

	var (
		granted bool
		leaseID uint64
		reason  arbiter.DenyReason
	)
	if dc.Force {
		granted, leaseID, reason = d.arbiter.ForceAcquire(dc.Count, dc.Source, category)
	} else {
		granted, leaseID, reason = d.arbiter.TryAcquire(dc.Count, dc.Source, category)
	}
	if d.metrics != nil {
		d.metrics.RecordArbiterDecision(string(reason))
	}
	if !granted {
		d.log.Debug("spoken alert suppressed",
			"reason", string(reason),
			"severity", severity,
			"source", dc.Source)
		return nil
	}
	defer d.arbiter.Release(leaseID, dc.Source)

	text := MessageFor(TierConfirm, severity, dc.Count, dc.Distance)
	if text == "" {
		return nil
	}

	if d.notifier != nil {
		n := notification.NewNotification(
			notification.TypeThreat,
			notification.PriorityForSeverity(severity),
			"threat detected",
			text,
		).
			WithMetadata("count", dc.Count).
			WithMetadata("severity", severity).
			WithMetadata("tier", TierConfirm).
			WithMetadata("source", dc.Source)
		if dc.ClipPath != "" {
			n.WithMetadata("clip_path", dc.ClipPath)
		}
		d.notifier.Publish(n)
	}

	if d.speech == nil || !d.speech.Enabled() {
		return nil
	}

	utterance, err := d.speech.Prepare(ctx, text, severity)
	if err != nil {
		return err
	}
	if utterance == nil {
		return nil
	}

	d.arbiter.RegisterPlayback(utterance.Duration)
	return d.speech.Play(ctx, utterance)
}
