package frame

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/ayane-dev/zombiewatch-go/internal/errors"
)

// Box is an axis-aligned bounding box with a confidence score, in frame
// pixel coordinates.
type Box struct {
	Rect       image.Rectangle
	Confidence float64
}

var boxColor = color.RGBA{R: 255, A: 255}

const boxStroke = 2

// Annotate returns a copy of the frame image with bounding boxes drawn on it.
// The original frame is left untouched.
func Annotate(f *Frame, boxes []Box) *image.RGBA {
	bounds := f.Image.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, f.Image, bounds.Min, draw.Src)

	for _, box := range boxes {
		drawRect(out, box.Rect.Intersect(bounds))
	}
	return out
}

// drawRect strokes the rectangle outline.
func drawRect(img *image.RGBA, r image.Rectangle) {
	if r.Empty() {
		return
	}
	for s := range boxStroke {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, r.Min.Y+s, boxColor)
			img.SetRGBA(x, r.Max.Y-1-s, boxColor)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.SetRGBA(r.Min.X+s, y, boxColor)
			img.SetRGBA(r.Max.X-1-s, y, boxColor)
		}
	}
}

// Save writes an annotated frame to dir as a JPEG named by capture time and
// detection count, and returns the full path.
func Save(img *image.RGBA, dir string, capturedAt time.Time, count int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("frame").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	name := fmt.Sprintf("detection_%s_%d.jpg", capturedAt.Format("20060102_150405"), count)
	path := filepath.Join(dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", errors.New(err).
			Component("frame").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", errors.New(err).
			Component("frame").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return path, nil
}
