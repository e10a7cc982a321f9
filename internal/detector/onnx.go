package detector

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
)

var (
	envOnce sync.Once
	envErr  error
)

// sharedLibPath returns the onnxruntime library for the current platform
// unless one was configured explicitly.
func sharedLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	switch runtime.GOOS {
	case "windows":
		return "third_party/onnxruntime.dll"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.dylib"
		}
		return "third_party/onnxruntime_amd64.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
}

// isBareLibraryName reports whether the path is left to the system loader's
// search path.
func isBareLibraryName(libPath string) bool {
	return filepath.Base(libPath) == libPath
}

// initRuntime loads the shared library once per process.
func initRuntime(libPath string) error {
	if !isBareLibraryName(libPath) {
		if _, err := os.Stat(libPath); err != nil {
			return errors.Wrapf(ErrRuntimeMissing, "%s: %v", libPath, err)
		}
	}
	envOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return errors.Wrapf(ErrRuntimeMissing, "initializing onnxruntime: %v", envErr)
	}
	return nil
}

// ONNXDetector runs a YOLOv8 ONNX export through onnxruntime.
type ONNXDetector struct {
	mu         sync.Mutex
	cfg        Config
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	names      []string
	numClasses int
	anchors    int
}

// NewONNXDetector loads the model, allocates its tensors and runs a warm-up
// inference. Errors wrapping ErrRuntimeMissing mean the runtime itself is
// unavailable.
func NewONNXDetector(cfg Config) (*ONNXDetector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultConfig().InputSize
	}
	if err := initRuntime(sharedLibPath(cfg.RuntimeLibraryPath)); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(ErrModelMissing, "%s", cfg.ModelPath)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading model inputs and outputs")
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Errorf("expected 1 input and at least 1 output, got %d and %d", len(inputs), len(outputs))
	}

	names := cfg.ClassNames
	if len(names) == 0 {
		names = metadataClassNames(cfg.ModelPath)
	}

	anchors := anchorCount(cfg.InputSize)
	numClasses := len(names)
	if dims := outputs[0].Dimensions; len(dims) == 3 {
		if dims[1] > 4 {
			numClasses = int(dims[1]) - 4
		}
		if dims[2] > 0 {
			anchors = int(dims[2])
		}
	}
	if numClasses <= 0 {
		return nil, errors.Errorf("cannot determine class count for %s", cfg.ModelPath)
	}

	d := &ONNXDetector{cfg: cfg, names: names, numClasses: numClasses, anchors: anchors}

	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	d.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+numClasses), int64(anchors)))
	if err != nil {
		d.input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		d.destroyTensors()
		return nil, errors.Wrap(err, "error creating session options")
	}
	defer options.Destroy()
	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			d.destroyTensors()
			return nil, errors.Wrap(err, "error setting intra-op threads")
		}
	}

	d.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{d.input},
		[]ort.ArbitraryTensor{d.output},
		options,
	)
	if err != nil {
		d.destroyTensors()
		return nil, errors.Wrap(err, "error creating session")
	}

	if err := d.session.Run(); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "warm-up inference failed")
	}

	logger.WithFields(logrus.Fields{
		"model_path":  cfg.ModelPath,
		"input_size":  cfg.InputSize,
		"num_classes": numClasses,
		"anchors":     anchors,
	}).Info("ONNX session ready")

	return d, nil
}

func metadataClassNames(modelPath string) []string {
	meta, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		logger.WithError(err).Warn("Unable to read model metadata")
		return nil
	}
	defer meta.Destroy()

	raw, ok, err := meta.LookupCustomMetadataMap("names")
	if err != nil || !ok {
		return nil
	}
	return parseClassNames(raw)
}

// Names returns the class labels indexed by class id.
func (d *ONNXDetector) Names() []string {
	return d.names
}

// Predict runs one inference. Calls are serialized because the session
// shares its input and output tensors.
func (d *ONNXDetector) Predict(ctx context.Context, buf *pixbuf.Buffer) ([]Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	rgb, err := buf.EnsureRGB()
	if err != nil {
		return nil, errors.Wrap(err, "invalid input buffer")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector is closed")
	}

	start := time.Now()
	if err := fillInput(rgb, d.cfg.InputSize, d.input.GetData()); err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	boxes, err := decodeOutput(d.output.GetData(), d.numClasses, d.anchors,
		rgb.Width, rgb.Height, d.cfg.InputSize, d.cfg.ConfidenceThreshold, d.names)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode output")
	}
	boxes = nonMaxSuppression(boxes, d.cfg.IoUThreshold)

	return []Result{{Source: rgb, Boxes: boxes, Speed: time.Since(start)}}, nil
}

func (d *ONNXDetector) destroyTensors() {
	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	if d.output != nil {
		d.output.Destroy()
		d.output = nil
	}
}

// Close releases the session and tensors. The shared environment stays up
// for the life of the process.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.session != nil {
		err = d.session.Destroy()
		d.session = nil
	}
	d.destroyTensors()
	return err
}
