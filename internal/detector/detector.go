// Package detector defines the detection capability consumed by the UI flow
// and the ONNX Runtime YOLOv8 backend that provides it.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
	"github.com/anime-shed/defect-inspector-go/internal/render"
)

var (
	// ErrRuntimeMissing means the inference runtime library could not be found or initialized
	ErrRuntimeMissing = errors.New("onnxruntime shared library not available")
	// ErrModelMissing means the weights file does not exist
	ErrModelMissing = errors.New("model weights not found")
	// ErrNoResults is returned when a detector yields an empty result list
	ErrNoResults = errors.New("detector returned no results")
)

// Box is one detection in source image pixel coordinates.
type Box struct {
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
}

// Rect converts the box to integer pixel coordinates.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

func (b Box) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// Result holds the detections for one input image.
type Result struct {
	Source *pixbuf.Buffer
	Boxes  []Box
	Speed  time.Duration
}

// Render burns the boxes and labels into a copy of the source image.
func (r Result) Render() (*pixbuf.Buffer, error) {
	annotations := make([]render.Annotation, 0, len(r.Boxes))
	for _, b := range r.Boxes {
		annotations = append(annotations, render.Annotation{
			ClassID:    b.ClassID,
			Label:      b.Label,
			Confidence: b.Confidence,
			Rect:       b.Rect(),
		})
	}
	return render.Plot(r.Source, annotations)
}

// Detector runs inference over an RGB pixel buffer. One Result is returned
// per input image.
type Detector interface {
	Predict(ctx context.Context, buf *pixbuf.Buffer) ([]Result, error)
	Close() error
}

// ReasonKind classifies why a capability is absent
type ReasonKind string

const (
	ReasonNone              ReasonKind = ""
	ReasonDependencyMissing ReasonKind = "dependency_missing"
	ReasonLoadFailed        ReasonKind = "load_failed"
)

// Capability is either a loaded detector or an absent sentinel carrying the
// reason. It is decided once at startup and never retried.
type Capability struct {
	detector  Detector
	kind      ReasonKind
	reason    error
	modelPath string
}

// Present wraps a loaded detector.
func Present(d Detector, modelPath string) *Capability {
	return &Capability{detector: d, modelPath: modelPath}
}

// Absent builds the unavailable sentinel.
func Absent(kind ReasonKind, reason error) *Capability {
	return &Capability{kind: kind, reason: reason}
}

func (c *Capability) Available() bool {
	return c != nil && c.detector != nil
}

// Detector returns the loaded detector, nil when absent.
func (c *Capability) Detector() Detector {
	if c == nil {
		return nil
	}
	return c.detector
}

func (c *Capability) Kind() ReasonKind {
	if c == nil {
		return ReasonLoadFailed
	}
	return c.kind
}

func (c *Capability) Reason() error {
	if c == nil {
		return nil
	}
	return c.reason
}

func (c *Capability) ModelPath() string {
	if c == nil {
		return ""
	}
	return c.modelPath
}

// StartupMessage is the page banner describing an absent capability.
func (c *Capability) StartupMessage() string {
	switch c.Kind() {
	case ReasonDependencyMissing:
		return "YOLO is not installed. Only basic image upload will be available."
	case ReasonLoadFailed:
		return fmt.Sprintf("Error loading YOLO model: %v", c.Reason())
	}
	return ""
}

// ClassNames returns the labels the detector can report, when it exposes them.
func (c *Capability) ClassNames() []string {
	named, ok := c.Detector().(interface{ Names() []string })
	if !ok {
		return nil
	}
	return named.Names()
}

func (c *Capability) Close() error {
	if !c.Available() {
		return nil
	}
	return c.detector.Close()
}

// Opener constructs a detector from configuration.
type Opener func(cfg Config) (Detector, error)

// Load builds the capability with the ONNX Runtime backend.
func Load(cfg Config) *Capability {
	return LoadWith(cfg, func(cfg Config) (Detector, error) {
		return NewONNXDetector(cfg)
	})
}

// LoadWith builds the capability with a custom opener. Errors wrapping
// ErrRuntimeMissing mark the dependency as missing; anything else is a load
// failure.
func LoadWith(cfg Config, open Opener) *Capability {
	fields := logrus.Fields{"model_path": cfg.ModelPath}

	d, err := open(cfg)
	if err != nil {
		kind := ReasonLoadFailed
		if errors.Is(err, ErrRuntimeMissing) {
			kind = ReasonDependencyMissing
		}
		logger.WithError(err).WithFields(fields).WithField("reason", kind).
			Warn("Detector unavailable, detection disabled")
		return Absent(kind, err)
	}

	logger.WithFields(fields).Info("Detector loaded")
	return Present(d, cfg.ModelPath)
}
