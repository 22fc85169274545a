// Package arbiter implements the single-flight permission gate for
// user-visible alerts. Alerts originate from independent sources (the
// monitoring loop, the manual trigger endpoint, replay) and must neither
// overlap audibly nor spam; the arbiter layers a global minimum interval, a
// single outstanding lease, per-source minimum intervals, an estimated
// speech-playback window, and per-category cooldowns.
package arbiter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

// Alert categories used for cooldown bookkeeping. Presence alerts share the
// "few" cooldown bucket.
const (
	CategoryFew     = "few"
	CategoryWarning = "warning"
	CategoryMany    = "many"
)

// DenyReason explains why TryAcquire refused a lease.
type DenyReason string

const (
	DenyNone           DenyReason = ""
	DenyGlobalInterval DenyReason = "global-interval"
	DenyActive         DenyReason = "lease-active"
	DenySourceInterval DenyReason = "source-interval"
	DenyPlayback       DenyReason = "playback-window"
	DenyCooldown       DenyReason = "category-cooldown"
)

// playbackMargin is added to the caller's estimated speech duration so the
// window always outlives the actual playback.
const playbackMargin = 500 * time.Millisecond

// Lease is the single-flight permission token. At most one lease is
// outstanding system-wide.
type Lease struct {
	ID         uint64
	Source     string
	AcquiredAt time.Time
}

// Arbiter tracks the lease, per-category cooldowns, per-source intervals and
// the estimated playback window. All state is guarded by one mutex held only
// for gate-check-and-commit, never across external calls.
type Arbiter struct {
	mu sync.Mutex

	active     bool
	lease      Lease
	nextID     uint64
	lastGrant  time.Time
	byCategory map[string]time.Time
	bySource   map[string]time.Time
	sources    map[string]struct{}

	audioPlaying  bool
	playbackStart time.Time
	playbackSpan  time.Duration

	globalMinInterval time.Duration
	sourceMinInterval time.Duration
	cooldowns         map[string]time.Duration

	now func() time.Time
	log *slog.Logger
}

// New creates an arbiter from notification settings.
func New(settings *conf.NotificationSettings) *Arbiter {
	return &Arbiter{
		byCategory: make(map[string]time.Time),
		bySource:   make(map[string]time.Time),
		sources:    make(map[string]struct{}),

		globalMinInterval: secs(settings.GlobalMinInterval),
		sourceMinInterval: secs(settings.SourceMinInterval),
		cooldowns: map[string]time.Duration{
			CategoryFew:     secs(settings.Cooldowns.Few),
			CategoryWarning: secs(settings.Cooldowns.Warning),
			CategoryMany:    secs(settings.Cooldowns.Many),
		},

		now: time.Now,
		log: logging.ForService("arbiter"),
	}
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// SetClock replaces the time source. Used by tests.
func (a *Arbiter) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// TryAcquire evaluates the gates in order under one mutex; any failure denies
// without side effects. On a full pass the arbiter transitions to Active,
// stamps timestamps and returns a fresh monotonically increasing lease id.
func (a *Arbiter) TryAcquire(count int, source, category string) (granted bool, id uint64, reason DenyReason) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	if !a.lastGrant.IsZero() && now.Sub(a.lastGrant) < a.globalMinInterval {
		return false, 0, DenyGlobalInterval
	}

	if a.active {
		return false, 0, DenyActive
	}

	if last, ok := a.bySource[source]; ok && now.Sub(last) < a.sourceMinInterval {
		return false, 0, DenySourceInterval
	}

	if a.audioPlaying {
		if now.Sub(a.playbackStart) < a.playbackSpan {
			return false, 0, DenyPlayback
		}
		// Estimated playback has finished, clear the stale state.
		a.audioPlaying = false
	}

	if cooldown, ok := a.cooldowns[category]; ok {
		if last, exists := a.byCategory[category]; exists && now.Sub(last) < cooldown {
			return false, 0, DenyCooldown
		}
	}

	return true, a.commit(count, source, category, now), DenyNone
}

// ForceAcquire grants a lease bypassing every time-based gate. The
// single-flight invariant still holds: a forced acquisition while a lease is
// outstanding is denied. Used by the manual trigger endpoint with force=true.
func (a *Arbiter) ForceAcquire(count int, source, category string) (granted bool, id uint64, reason DenyReason) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active {
		return false, 0, DenyActive
	}
	return true, a.commit(count, source, category, a.now()), DenyNone
}

// commit transitions to Active. Caller holds the mutex.
func (a *Arbiter) commit(count int, source, category string, now time.Time) uint64 {
	a.nextID++
	a.active = true
	a.lease = Lease{ID: a.nextID, Source: source, AcquiredAt: now}
	a.lastGrant = now
	a.bySource[source] = now
	if category != "" {
		a.byCategory[category] = now
	}
	a.sources[source] = struct{}{}

	if a.log != nil {
		a.log.Info("notification lease granted",
			"lease_id", a.nextID,
			"count", count,
			"source", source,
			"category", category)
	}
	return a.nextID
}

// Release transitions to Idle. It is idempotent: releasing an unknown or
// already-released id is a no-op and never grants a phantom lease.
func (a *Arbiter) Release(id uint64, source string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active || a.lease.ID != id {
		return false
	}

	a.active = false
	delete(a.sources, a.lease.Source)

	if a.log != nil {
		a.log.Info("notification lease released", "lease_id", id, "source", source)
	}
	return true
}

// RegisterPlayback extends the Active window to cover an estimated speech
// duration so overlapping triggers are suppressed without polling the speech
// engine.
func (a *Arbiter) RegisterPlayback(duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.audioPlaying = true
	a.playbackStart = a.now()
	a.playbackSpan = duration + playbackMargin

	if a.log != nil {
		a.log.Debug("audio playback registered", "estimated_duration", duration)
	}
}

// IsSourceActive reports whether the given source currently holds the lease.
func (a *Arbiter) IsSourceActive(source string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sources[source]
	return ok
}

// Active reports whether a lease is currently outstanding.
func (a *Arbiter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Reset clears all arbitration state. Called when a monitoring session stops.
func (a *Arbiter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = false
	a.lease = Lease{}
	a.lastGrant = time.Time{}
	a.audioPlaying = false
	a.byCategory = make(map[string]time.Time)
	a.bySource = make(map[string]time.Time)
	a.sources = make(map[string]struct{})
}
