package frame

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{G: 128, A: 255})
		}
	}
	return &Frame{
		Image:        img,
		CapturedAt:   time.Date(2026, 8, 24, 15, 4, 5, 0, time.UTC),
		ResizeFactor: 1.0,
	}
}

func TestDownscale_PreservesAspectRatio(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	dst := downscale(src, 0.5)

	assert.Equal(t, 960, dst.Bounds().Dx())
	assert.Equal(t, 540, dst.Bounds().Dy())
}

func TestDownscale_NeverProducesEmptyImage(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	dst := downscale(src, 0.1)

	assert.GreaterOrEqual(t, dst.Bounds().Dx(), 1)
	assert.GreaterOrEqual(t, dst.Bounds().Dy(), 1)
}

func TestAnnotate_DrawsBoxWithoutMutatingSource(t *testing.T) {
	t.Parallel()

	f := solidFrame(100, 100)
	boxes := []Box{{Rect: image.Rect(10, 10, 50, 50), Confidence: 0.9}}

	out := Annotate(f, boxes)

	assert.Equal(t, boxColor, out.RGBAAt(10, 10), "box outline drawn on copy")
	assert.Equal(t, color.RGBA{G: 128, A: 255}, f.Image.RGBAAt(10, 10), "source untouched")
	assert.Equal(t, color.RGBA{G: 128, A: 255}, out.RGBAAt(30, 30), "box interior not filled")
}

func TestAnnotate_ClipsOutOfBoundsBoxes(t *testing.T) {
	t.Parallel()

	f := solidFrame(50, 50)
	boxes := []Box{{Rect: image.Rect(-20, -20, 200, 200)}}

	// Must not panic on boxes outside the frame.
	out := Annotate(f, boxes)
	assert.NotNil(t, out)
}

func TestSave_NamesFileByTimestampAndCount(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := solidFrame(20, 20)

	path, err := Save(f.Image, dir, f.CapturedAt, 7)
	require.NoError(t, err)

	assert.Equal(t, "detection_20260824_150405_7.jpg", filepath.Base(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSave_CreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	f := solidFrame(10, 10)

	_, err := Save(f.Image, dir, f.CapturedAt, 1)
	require.NoError(t, err)
}
