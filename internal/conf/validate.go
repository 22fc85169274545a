package conf

import (
	"fmt"

	"github.com/ayane-dev/zombiewatch-go/internal/errors"
)

// Performance profile bounds. Values outside these ranges are clamped rather
// than rejected so a hand-edited config cannot stall the loop.
const (
	MinFrameInterval = 0.1
	MaxFrameInterval = 10.0
	MinResizeFactor  = 0.2
	MaxResizeFactor  = 1.0
	MinSkipRatio     = 1
	MaxSkipRatio     = 5
	MinCPUThreshold  = 50.0
	MaxCPUThreshold  = 95.0
)

// performanceModes maps named modes to baseline profiles. "detection" favors
// latency, "performance" leaves CPU headroom for the game.
var performanceModes = map[string]PerformanceSettings{
	"performance": {Interval: 5.0, ResizeFactor: 0.4, SkipRatio: 3, CPUThreshold: 70},
	"balanced":    {Interval: 3.0, ResizeFactor: 0.6, SkipRatio: 2, CPUThreshold: 80},
	"detection":   {Interval: 0.3, ResizeFactor: 0.75, SkipRatio: 1, CPUThreshold: 90},
}

// ValidateSettings normalizes and validates the loaded settings tree.
func ValidateSettings(settings *Settings) error {
	if err := validateDetectorSettings(&settings.Detector); err != nil {
		return err
	}
	if err := validateNotificationSettings(&settings.Notification); err != nil {
		return err
	}
	applyPerformanceMode(&settings.Watcher.Performance)
	clampPerformanceSettings(&settings.Watcher.Performance)
	normalizeHistorySettings(&settings.Watcher.History)
	return nil
}

func validateDetectorSettings(d *DetectorSettings) error {
	if d.Confidence <= 0 || d.Confidence > 1 {
		return errors.Newf("detector confidence must be in (0, 1], got %v", d.Confidence).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("confidence", d.Confidence).
			Build()
	}
	if d.ModelPath == "" {
		return errors.Newf("detector model path must not be empty").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(d.TargetClasses) == 0 {
		d.TargetClasses = []int{0}
	}
	return nil
}

func validateNotificationSettings(n *NotificationSettings) error {
	for name, v := range map[string]float64{
		"globalmininterval": n.GlobalMinInterval,
		"sourcemininterval": n.SourceMinInterval,
		"cooldowns.few":     n.Cooldowns.Few,
		"cooldowns.warning": n.Cooldowns.Warning,
		"cooldowns.many":    n.Cooldowns.Many,
	} {
		if v < 0 {
			return errors.Newf("notification.%s must not be negative, got %v", name, v).
				Component("conf").
				Category(errors.CategoryValidation).
				Context("setting", fmt.Sprintf("notification.%s", name)).
				Build()
		}
	}
	if n.MaxStored <= 0 {
		n.MaxStored = 1000
	}
	return nil
}

// applyPerformanceMode replaces the baseline profile with a named mode preset.
// Explicit per-field values in the config win only when no mode is named.
func applyPerformanceMode(p *PerformanceSettings) {
	if p.Mode == "" {
		return
	}
	if preset, ok := performanceModes[p.Mode]; ok {
		checkInterval := p.CheckInterval
		*p = preset
		p.Mode = ""
		p.CheckInterval = checkInterval
	}
}

// clampPerformanceSettings forces the baseline profile into allowed ranges.
func clampPerformanceSettings(p *PerformanceSettings) {
	p.Interval = clampFloat(p.Interval, MinFrameInterval, MaxFrameInterval)
	p.ResizeFactor = clampFloat(p.ResizeFactor, MinResizeFactor, MaxResizeFactor)
	p.SkipRatio = clampInt(p.SkipRatio, MinSkipRatio, MaxSkipRatio)
	p.CPUThreshold = clampFloat(p.CPUThreshold, MinCPUThreshold, MaxCPUThreshold)
	if p.CheckInterval <= 0 {
		p.CheckInterval = 10
	}
}

func normalizeHistorySettings(h *HistorySettings) {
	if h.Size <= 0 {
		h.Size = 3
	}
	if h.RequiredDetections <= 0 {
		h.RequiredDetections = 1
	}
	if h.RequiredDetections > h.Size {
		h.RequiredDetections = h.Size
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
