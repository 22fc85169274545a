// Package frame provides screen frame acquisition for the monitoring loop.
// Frames are captured from a physical display, optionally downscaled before
// inference, and can be annotated and persisted for debugging.
package frame

import (
	"image"
	"time"

	"github.com/kbinani/screenshot"
	xdraw "golang.org/x/image/draw"

	"github.com/ayane-dev/zombiewatch-go/internal/errors"
)

// Frame is a single captured screen image plus capture metadata. The image is
// always RGBA; ResizeFactor records the downscale applied relative to the
// native display resolution.
type Frame struct {
	Image        *image.RGBA
	CapturedAt   time.Time
	Display      int
	ResizeFactor float64
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// CaptureProvider produces frames from a display. Implementations must be
// safe for use from a single goroutine; the monitoring loop is the only
// caller.
type CaptureProvider interface {
	// Capture grabs the given display, downscaled by resizeFactor (0-1,
	// 1 means native resolution).
	Capture(display int, resizeFactor float64) (*Frame, error)
	// NumDisplays reports how many displays are attached.
	NumDisplays() int
}

// ScreenProvider captures real displays.
type ScreenProvider struct{}

// NewScreenProvider returns a provider backed by the OS screen capture API.
func NewScreenProvider() *ScreenProvider {
	return &ScreenProvider{}
}

// NumDisplays reports the number of active displays.
func (p *ScreenProvider) NumDisplays() int {
	return screenshot.NumActiveDisplays()
}

// Capture grabs a display and downscales it. A zero or out-of-range resize
// factor captures at native resolution.
func (p *ScreenProvider) Capture(display int, resizeFactor float64) (*Frame, error) {
	if display < 0 || display >= screenshot.NumActiveDisplays() {
		return nil, errors.Newf("display %d not available", display).
			Component("frame").
			Category(errors.CategoryCapture).
			Context("displays", screenshot.NumActiveDisplays()).
			Build()
	}

	img, err := screenshot.CaptureDisplay(display)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCapture).
			Context("display", display).
			Build()
	}

	captured := &Frame{
		Image:        img,
		CapturedAt:   time.Now(),
		Display:      display,
		ResizeFactor: 1.0,
	}

	if resizeFactor > 0 && resizeFactor < 1 {
		captured.Image = downscale(img, resizeFactor)
		captured.ResizeFactor = resizeFactor
	}

	return captured, nil
}

// downscale resizes src by factor using approximate bilinear interpolation.
func downscale(src *image.RGBA, factor float64) *image.RGBA {
	bounds := src.Bounds()
	w := int(float64(bounds.Dx()) * factor)
	h := int(float64(bounds.Dy()) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}
