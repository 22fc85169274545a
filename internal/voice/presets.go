package voice

// Preset holds the VOICEVOX style parameters applied to an audio query
// before synthesis.
type Preset struct {
	SpeedScale      float64
	PitchScale      float64
	IntonationScale float64
	VolumeScale     float64
}

// Style presets keyed by alert severity. Urgent alerts speak faster and with
// more intonation so they cut through game audio.
var presets = map[string]Preset{
	"many":     {SpeedScale: 1.2, PitchScale: 0.04, IntonationScale: 1.3, VolumeScale: 1.0},
	"warning":  {SpeedScale: 1.1, PitchScale: 0.02, IntonationScale: 1.2, VolumeScale: 1.0},
	"few":      {SpeedScale: 1.0, PitchScale: 0.0, IntonationScale: 1.0, VolumeScale: 1.0},
	"presence": {SpeedScale: 0.95, PitchScale: -0.02, IntonationScale: 0.9, VolumeScale: 1.0},
}

var defaultPreset = Preset{SpeedScale: 1.0, IntonationScale: 1.0, VolumeScale: 1.0}

// PresetFor returns the style preset for a severity, falling back to neutral
// delivery for unknown severities.
func PresetFor(severity string) Preset {
	if p, ok := presets[severity]; ok {
		return p
	}
	return defaultPreset
}
