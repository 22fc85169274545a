package detector

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"
	xdraw "golang.org/x/image/draw"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/errors"
	"github.com/ayane-dev/zombiewatch-go/internal/frame"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

// iouThreshold is the overlap above which two candidate boxes are considered
// duplicates during non-maximum suppression.
const iouThreshold = 0.45

// TFLiteDetector runs a single-shot object detection model. The model output
// is expected in the YOLO row layout [1, 4+numClasses, numCandidates] with
// normalized center-x, center-y, width, height followed by per-class scores.
type TFLiteDetector struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	settings    *conf.DetectorSettings
	inputWidth  int
	inputHeight int
	log         *slog.Logger
}

// NewTFLiteDetector loads the detection model from settings and allocates the
// interpreter.
func NewTFLiteDetector(settings *conf.DetectorSettings) (*TFLiteDetector, error) {
	start := time.Now()

	modelData, err := os.ReadFile(settings.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryModelLoad).
			Context("model_path", settings.ModelPath).
			Build()
	}

	interpreter, err := newInterpreter(modelData, settings.Threads, settings.UseXNNPACK)
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.ModelPath).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 {
		interpreter.Delete()
		return nil, errors.Newf("unexpected detector input tensor shape").
			Component("detector").
			Category(errors.CategoryModelInit).
			Build()
	}

	d := &TFLiteDetector{
		interpreter: interpreter,
		settings:    settings,
		inputHeight: input.Dim(1),
		inputWidth:  input.Dim(2),
		log:         logging.ForService("detector"),
	}

	d.log.Info("detection model initialized",
		"model_path", settings.ModelPath,
		"input_width", d.inputWidth,
		"input_height", d.inputHeight,
		"use_xnnpack", settings.UseXNNPACK,
		"duration_ms", time.Since(start).Milliseconds())

	return d, nil
}

// newInterpreter builds a tflite interpreter with optional XNNPACK delegate.
func newInterpreter(modelData []byte, threads int, useXNNPACK bool) (*tflite.Interpreter, error) {
	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, fmt.Errorf("cannot parse model data")
	}

	if threads <= 0 {
		threads = 1
	}

	options := tflite.NewInterpreterOptions()
	if useXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(threads)})
		if delegate != nil {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		} else {
			options.SetNumThread(threads)
		}
	} else {
		options.SetNumThread(threads)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		return nil, fmt.Errorf("tensor allocation failed")
	}
	return interpreter, nil
}

// Detect runs inference and returns detections above the confidence
// threshold, restricted to the configured target classes, with duplicates
// suppressed.
func (d *TFLiteDetector) Detect(f *frame.Frame) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	input := d.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, errors.Newf("cannot get detector input tensor").
			Component("detector").
			Category(errors.CategoryInference).
			Build()
	}

	fillInputTensor(input.Float32s(), f.Image, d.inputWidth, d.inputHeight)

	if status := d.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("detector invoke failed: %v", status).
			Component("detector").
			Category(errors.CategoryInference).
			Build()
	}

	output := d.interpreter.GetOutputTensor(0)
	if output == nil || output.NumDims() != 3 {
		return nil, errors.Newf("unexpected detector output tensor shape").
			Component("detector").
			Category(errors.CategoryInference).
			Build()
	}

	candidates := decodeRows(
		output.Float32s(),
		output.Dim(1),
		output.Dim(2),
		d.settings.Confidence,
		d.settings.TargetClasses,
		f.Width(),
		f.Height(),
	)
	return suppressOverlaps(candidates), nil
}

// Close releases the interpreter.
func (d *TFLiteDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interpreter != nil {
		d.interpreter.Delete()
		d.interpreter = nil
	}
}

// fillInputTensor letterbox-free resizes the frame to the model input size
// and writes normalized RGB values.
func fillInputTensor(dst []float32, img *image.RGBA, width, height int) {
	resized := img
	if img.Bounds().Dx() != width || img.Bounds().Dy() != height {
		resized = image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	}

	idx := 0
	for y := range height {
		for x := range width {
			c := resized.RGBAAt(x, y)
			dst[idx] = float32(c.R) / 255.0
			dst[idx+1] = float32(c.G) / 255.0
			dst[idx+2] = float32(c.B) / 255.0
			idx += 3
		}
	}
}

// decodeRows converts raw model output to frame-space detections. The layout
// is column-major over candidates: row r holds value r for every candidate.
func decodeRows(raw []float32, rows, candidates int, threshold float64, targetClasses []int, frameW, frameH int) []Detection {
	numClasses := rows - 4
	if numClasses < 1 || len(raw) < rows*candidates {
		return nil
	}

	classAllowed := func(id int) bool {
		if len(targetClasses) == 0 {
			return id == 0
		}
		for _, t := range targetClasses {
			if t == id {
				return true
			}
		}
		return false
	}

	at := func(row, cand int) float32 { return raw[row*candidates+cand] }

	var out []Detection
	for c := range candidates {
		bestClass, bestScore := -1, float32(0)
		for cls := range numClasses {
			if score := at(4+cls, c); score > bestScore {
				bestScore = score
				bestClass = cls
			}
		}
		if float64(bestScore) < threshold || !classAllowed(bestClass) {
			continue
		}

		cx := float64(at(0, c)) * float64(frameW)
		cy := float64(at(1, c)) * float64(frameH)
		w := float64(at(2, c)) * float64(frameW)
		h := float64(at(3, c)) * float64(frameH)

		rect := image.Rect(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
		).Intersect(image.Rect(0, 0, frameW, frameH))
		if rect.Empty() {
			continue
		}

		out = append(out, Detection{
			Box:        rect,
			Confidence: float64(bestScore),
			ClassID:    bestClass,
		})
	}
	return out
}

// suppressOverlaps applies greedy non-maximum suppression, keeping the
// highest-confidence box of each overlapping cluster.
func suppressOverlaps(detections []Detection) []Detection {
	if len(detections) <= 1 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	kept := make([]Detection, 0, len(detections))
	for _, d := range detections {
		overlaps := false
		for _, k := range kept {
			if iou(d.Box, k.Box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}

// iou computes intersection over union of two rectangles.
func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
