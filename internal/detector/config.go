package detector

// Config holds the detector backend settings.
type Config struct {
	// ModelPath is the ONNX export of the YOLOv8 weights
	ModelPath string
	// RuntimeLibraryPath overrides the per-platform onnxruntime library location
	RuntimeLibraryPath string
	// InputSize is the square model input edge in pixels
	InputSize int
	// ConfidenceThreshold drops boxes whose best class score is lower
	ConfidenceThreshold float32
	// IoUThreshold controls per-class Non-Maximum Suppression
	IoUThreshold float32
	// ClassNames overrides the names embedded in the model metadata
	ClassNames []string
	// IntraOpThreads is passed to the session options, 0 keeps the runtime default
	IntraOpThreads int
}

// DefaultConfig mirrors the YOLOv8 predict defaults.
func DefaultConfig() Config {
	return Config{
		ModelPath:           "weights/bestYOLOv8.onnx",
		InputSize:           640,
		ConfidenceThreshold: 0.25,
		IoUThreshold:        0.7,
	}
}
