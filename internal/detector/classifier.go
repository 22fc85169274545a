package detector

import (
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/errors"
	"github.com/ayane-dev/zombiewatch-go/internal/frame"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

// TFLiteClassifier runs a binary whole-frame scene classifier. Its output is
// either a single logit/probability or a two-class softmax pair; in both
// cases Classify returns the positive-class probability.
type TFLiteClassifier struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	inputWidth  int
	inputHeight int
	log         *slog.Logger
}

// NewTFLiteClassifier loads the scene classification model.
func NewTFLiteClassifier(settings *conf.ClassifierSettings) (*TFLiteClassifier, error) {
	start := time.Now()

	modelData, err := os.ReadFile(settings.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", settings.ModelPath).
			Build()
	}

	interpreter, err := newInterpreter(modelData, 1, false)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.ModelPath).
			Build()
	}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 {
		interpreter.Delete()
		return nil, errors.Newf("unexpected classifier input tensor shape").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	c := &TFLiteClassifier{
		interpreter: interpreter,
		inputHeight: input.Dim(1),
		inputWidth:  input.Dim(2),
		log:         logging.ForService("classifier"),
	}

	c.log.Info("scene classification model initialized",
		"model_path", settings.ModelPath,
		"input_width", c.inputWidth,
		"input_height", c.inputHeight,
		"duration_ms", time.Since(start).Milliseconds())

	return c, nil
}

// Classify returns the probability that the frame shows a threat scene.
func (c *TFLiteClassifier) Classify(f *frame.Frame) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input := c.interpreter.GetInputTensor(0)
	if input == nil {
		return 0, errors.Newf("cannot get classifier input tensor").
			Component("classifier").
			Category(errors.CategoryInference).
			Build()
	}

	fillInputTensor(input.Float32s(), f.Image, c.inputWidth, c.inputHeight)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return 0, errors.Newf("classifier invoke failed: %v", status).
			Component("classifier").
			Category(errors.CategoryInference).
			Build()
	}

	output := c.interpreter.GetOutputTensor(0)
	if output == nil {
		return 0, errors.Newf("cannot get classifier output tensor").
			Component("classifier").
			Category(errors.CategoryInference).
			Build()
	}

	values := output.Float32s()
	switch len(values) {
	case 0:
		return 0, errors.Newf("empty classifier output").
			Component("classifier").
			Category(errors.CategoryInference).
			Build()
	case 1:
		return sigmoid(float64(values[0])), nil
	default:
		// Two-class softmax output, positive class last.
		return softmaxPositive(values), nil
	}
}

// Close releases the interpreter.
func (c *TFLiteClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// softmaxPositive returns the softmax probability of the last class.
func softmaxPositive(logits []float32) float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	for _, v := range logits {
		sum += math.Exp(float64(v - maxLogit))
	}
	positive := math.Exp(float64(logits[len(logits)-1] - maxLogit))
	return positive / sum
}
