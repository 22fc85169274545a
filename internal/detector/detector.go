// Package detector runs model inference on captured frames. The primary
// detector finds and counts individual threats with bounding boxes; the
// optional scene classifier gives a whole-frame verdict used to catch
// threats the detector misses.
package detector

import (
	"image"
	"time"

	"github.com/ayane-dev/zombiewatch-go/internal/frame"
)

// Detection is a single object found in a frame, in frame pixel coordinates.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
	ClassID    int
}

// Result is the fused outcome of one frame's inference pass.
type Result struct {
	Detections       []Detection
	Count            int
	SceneProbability float64 // classifier probability, 0 when classifier disabled or failed
	ScenePresence    bool    // true when the classifier alone indicates presence
	InferenceTime    time.Duration
}

// Context carries a confirmed detection to the reaction layer. It is built
// once per confirmed frame and treated as immutable by consumers.
type Context struct {
	Count            int
	MaxConfidence    float64
	SceneProbability float64
	ScenePresence    bool
	Distance         string // "near", "far" or empty when unknown
	Source           string
	Force            bool // bypass alert cooldowns, set by the manual trigger
	CapturedAt       time.Time
	FrameWidth       int
	FrameHeight      int
	ClipPath         string // annotated frame artifact, empty if not saved
}

// Detector finds threats in a frame.
type Detector interface {
	Detect(f *frame.Frame) ([]Detection, error)
	Close()
}

// Classifier gives a whole-frame presence probability.
type Classifier interface {
	Classify(f *frame.Frame) (float64, error)
	Close()
}

// EstimateDistance derives a coarse distance label from the largest bounding
// box relative to the frame area.
func EstimateDistance(detections []Detection, frameWidth, frameHeight int) string {
	if len(detections) == 0 || frameWidth <= 0 || frameHeight <= 0 {
		return ""
	}

	frameArea := float64(frameWidth * frameHeight)
	largest := 0.0
	for _, d := range detections {
		area := float64(d.Box.Dx() * d.Box.Dy())
		if area > largest {
			largest = area
		}
	}

	if largest/frameArea >= 0.05 {
		return "near"
	}
	return "far"
}

// MaxConfidence returns the highest detection confidence, 0 for no
// detections.
func MaxConfidence(detections []Detection) float64 {
	best := 0.0
	for _, d := range detections {
		if d.Confidence > best {
			best = d.Confidence
		}
	}
	return best
}
