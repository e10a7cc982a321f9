package detector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
)

func TestFillInput_UniformColor(t *testing.T) {
	buf := pixbuf.New(50, 30, 3)
	for i := 0; i < len(buf.Pix); i += 3 {
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2] = 255, 0, 51
	}

	size := 32
	dst := make([]float32, 3*size*size)
	require.NoError(t, fillInput(buf, size, dst))

	plane := size * size
	for _, i := range []int{0, plane / 2, plane - 1} {
		assert.InDelta(t, 1.0, dst[i], 0.01)
		assert.InDelta(t, 0.0, dst[plane+i], 0.01)
		assert.InDelta(t, 0.2, dst[2*plane+i], 0.01)
	}
}

func TestFillInput_ShortDestination(t *testing.T) {
	err := fillInput(pixbuf.New(4, 4, 3), 32, make([]float32, 10))
	assert.Error(t, err)
}

func TestSharedLibPath(t *testing.T) {
	assert.Equal(t, "/opt/ort/libonnxruntime.so", sharedLibPath("/opt/ort/libonnxruntime.so"))
	assert.NotEmpty(t, sharedLibPath(""))
}

func TestIsBareLibraryName(t *testing.T) {
	tests := []struct {
		path string
		bare bool
	}{
		{"libonnxruntime.so", true},
		{"onnxruntime.dll", true},
		{"third_party/onnxruntime.so", false},
		{"/usr/lib/libonnxruntime.so", false},
		{"./libonnxruntime.so", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.bare, isBareLibraryName(tt.path))
		})
	}
}

func TestNewONNXDetector_MissingRuntime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RuntimeLibraryPath = filepath.Join(t.TempDir(), "libonnxruntime.so")

	_, err := NewONNXDetector(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuntimeMissing)
}
