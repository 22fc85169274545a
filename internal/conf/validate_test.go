package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Detector.ModelPath = "models/detector.tflite"
	s.Detector.Confidence = 0.45
	s.Watcher.Performance = PerformanceSettings{
		Interval:      0.3,
		ResizeFactor:  0.65,
		SkipRatio:     1,
		CPUThreshold:  80,
		CheckInterval: 10,
	}
	s.Watcher.History = HistorySettings{Size: 3, RequiredDetections: 1}
	s.Notification = NotificationSettings{
		GlobalMinInterval: 5,
		SourceMinInterval: 1,
		Cooldowns:         CooldownSettings{Few: 30, Warning: 40, Many: 30},
		MaxStored:         100,
	}
	return s
}

func TestValidateSettings_AcceptsDefaults(t *testing.T) {
	s := validSettings()
	require.NoError(t, ValidateSettings(s))
	assert.Equal(t, []int{0}, s.Detector.TargetClasses, "empty target classes default to class 0")
}

func TestValidateSettings_RejectsBadConfidence(t *testing.T) {
	s := validSettings()
	s.Detector.Confidence = 1.5
	assert.Error(t, ValidateSettings(s))

	s.Detector.Confidence = 0
	assert.Error(t, ValidateSettings(s))
}

func TestValidateSettings_RejectsEmptyModelPath(t *testing.T) {
	s := validSettings()
	s.Detector.ModelPath = ""
	assert.Error(t, ValidateSettings(s))
}

func TestValidateSettings_RejectsNegativeIntervals(t *testing.T) {
	s := validSettings()
	s.Notification.Cooldowns.Warning = -1
	assert.Error(t, ValidateSettings(s))
}

func TestValidateSettings_ClampsPerformanceBounds(t *testing.T) {
	s := validSettings()
	s.Watcher.Performance.Interval = 0.01
	s.Watcher.Performance.ResizeFactor = 0.05
	s.Watcher.Performance.SkipRatio = 99
	s.Watcher.Performance.CPUThreshold = 99

	require.NoError(t, ValidateSettings(s))

	p := s.Watcher.Performance
	assert.InDelta(t, MinFrameInterval, p.Interval, 1e-9)
	assert.InDelta(t, MinResizeFactor, p.ResizeFactor, 1e-9)
	assert.Equal(t, MaxSkipRatio, p.SkipRatio)
	assert.InDelta(t, MaxCPUThreshold, p.CPUThreshold, 1e-9)
}

func TestValidateSettings_AppliesNamedPerformanceMode(t *testing.T) {
	s := validSettings()
	s.Watcher.Performance.Mode = "balanced"

	require.NoError(t, ValidateSettings(s))

	p := s.Watcher.Performance
	assert.InDelta(t, 3.0, p.Interval, 1e-9)
	assert.InDelta(t, 0.6, p.ResizeFactor, 1e-9)
	assert.Equal(t, 2, p.SkipRatio)
	assert.Equal(t, 10, p.CheckInterval, "check interval preserved across mode presets")
}

func TestValidateSettings_UnknownModeKeepsExplicitValues(t *testing.T) {
	s := validSettings()
	s.Watcher.Performance.Mode = "turbo"

	require.NoError(t, ValidateSettings(s))
	assert.InDelta(t, 0.3, s.Watcher.Performance.Interval, 1e-9)
}

func TestValidateSettings_NormalizesHistory(t *testing.T) {
	s := validSettings()
	s.Watcher.History = HistorySettings{Size: 2, RequiredDetections: 5}

	require.NoError(t, ValidateSettings(s))
	assert.Equal(t, 2, s.Watcher.History.RequiredDetections, "required capped to window size")
}
