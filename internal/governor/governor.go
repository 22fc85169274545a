// Package governor adapts capture cadence and resolution to available CPU
// headroom. It is a simple proportional-reset controller: above the CPU
// threshold the profile degrades by fixed factors, at or below it the profile
// snaps back to baseline.
package governor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

// Degradation factors and hard bounds applied above the CPU threshold.
const (
	intervalScale  = 1.5
	maxInterval    = 2 * time.Second
	resizeScale    = 0.8
	minResize      = 0.3
	skipStep       = 1
	maxSkip        = 5
	cpuSampleSpan  = 500 * time.Millisecond
	defaultCheckIv = 10 * time.Second
)

// Profile holds the tunable capture/detection parameters the monitoring loop
// reads every iteration. Values are always within clamped bounds.
type Profile struct {
	Interval     time.Duration // sleep between processed frames
	ResizeFactor float64       // frame downscale factor, 0-1
	SkipRatio    int           // process only every Nth frame
	CPUThreshold float64       // percent above which the governor degrades
}

// CPUSampler returns the system-wide CPU utilization percentage sampled over
// the given span. Matches the shape of gopsutil's cpu.Percent.
type CPUSampler func(span time.Duration) (float64, error)

// gopsutilSampler is the production sampler.
func gopsutilSampler(span time.Duration) (float64, error) {
	percents, err := cpu.Percent(span, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// Governor owns the live performance profile. Mutations happen only through
// Tune and are clamped on every change.
type Governor struct {
	mu            sync.RWMutex
	baseline      Profile
	current       Profile
	sampler       CPUSampler
	checkInterval time.Duration
	lastCheck     time.Time
	degraded      bool
	log           *slog.Logger
}

// New creates a governor from the configured baseline performance settings.
func New(settings *conf.PerformanceSettings) *Governor {
	baseline := Profile{
		Interval:     time.Duration(settings.Interval * float64(time.Second)),
		ResizeFactor: settings.ResizeFactor,
		SkipRatio:    settings.SkipRatio,
		CPUThreshold: settings.CPUThreshold,
	}

	checkInterval := defaultCheckIv
	if settings.CheckInterval > 0 {
		checkInterval = time.Duration(settings.CheckInterval) * time.Second
	}

	return &Governor{
		baseline:      baseline,
		current:       baseline,
		sampler:       gopsutilSampler,
		checkInterval: checkInterval,
		log:           logging.ForService("governor"),
	}
}

// SetSampler replaces the CPU sampler. Used by tests.
func (g *Governor) SetSampler(sampler CPUSampler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sampler = sampler
}

// Profile returns the current performance profile.
func (g *Governor) Profile() Profile {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Baseline returns the configured baseline profile.
func (g *Governor) Baseline() Profile {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.baseline
}

// CheckDue reports whether the check interval has elapsed since the last
// Tune call. The monitoring loop polls this at the top of each iteration.
func (g *Governor) CheckDue(now time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return now.Sub(g.lastCheck) >= g.checkInterval
}

// Sample measures CPU load and tunes the profile accordingly. A sampling
// failure silently reverts to baseline rather than acting on stale data.
func (g *Governor) Sample(now time.Time) Profile {
	g.mu.RLock()
	sampler := g.sampler
	g.mu.RUnlock()

	cpuPercent, err := sampler(cpuSampleSpan)
	if err != nil {
		if g.log != nil {
			g.log.Debug("CPU sampling failed, reverting to baseline", "error", err)
		}
		return g.reset(now)
	}
	return g.Tune(cpuPercent, now)
}

// Tune applies the control rule for the measured CPU percentage and returns
// the resulting profile.
func (g *Governor) Tune(cpuPercent float64, now time.Time) Profile {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastCheck = now

	if cpuPercent > g.current.CPUThreshold {
		// Each over-threshold sample degrades further from the current
		// profile until the caps and floors are reached.
		g.current.Interval = minDuration(time.Duration(float64(g.current.Interval)*intervalScale), maxInterval)
		g.current.ResizeFactor = maxFloat(g.current.ResizeFactor*resizeScale, minResize)
		g.current.SkipRatio = minInt(g.current.SkipRatio+skipStep, maxSkip)
		if g.log != nil {
			g.log.Info("high CPU load, degrading capture profile",
				"cpu_percent", cpuPercent,
				"interval", g.current.Interval,
				"resize_factor", g.current.ResizeFactor,
				"skip_ratio", g.current.SkipRatio)
		}
		g.degraded = true
	} else {
		if g.degraded && g.log != nil {
			g.log.Info("CPU load back below threshold, restoring baseline profile",
				"cpu_percent", cpuPercent)
		}
		g.current = g.baseline
		g.degraded = false
	}

	return g.current
}

// reset reverts to baseline and stamps the check time.
func (g *Governor) reset(now time.Time) Profile {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastCheck = now
	g.current = g.baseline
	g.degraded = false
	return g.current
}

// Degraded reports whether the governor is currently above threshold.
func (g *Governor) Degraded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.degraded
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
