package container

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/defect-inspector-go/internal/config"
	"github.com/anime-shed/defect-inspector-go/internal/detector"
	"github.com/anime-shed/defect-inspector-go/internal/detector/detectortest"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Host:                 "127.0.0.1",
		Port:                 "8080",
		RequestTimeout:       5 * time.Second,
		MaxRequestBodySize:   1 << 20,
		Title:                "Textile Defect Detection System",
		Layout:               config.LayoutPersistent,
		ModelPath:            "weights/test.onnx",
		ConfidenceThreshold:  0.4,
		IoUThreshold:         0.5,
		InputSize:            320,
		ClassNames:           []string{"hole", "stain"},
		SessionTTL:           time.Minute,
		SessionSweepInterval: time.Minute,
		SessionCookieName:    "defect_session",
		HistoryDBPath:        filepath.Join(t.TempDir(), "history.db"),
	}
}

func TestNewContainer_WiresDetector(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	fake := &detectortest.Fake{}

	var got detector.Config
	c, err := newContainer(cfg, func(dc detector.Config) *detector.Capability {
		got = dc
		return detector.Present(fake, dc.ModelPath)
	})
	require.NoError(t, err)

	assert.Equal(t, "weights/test.onnx", got.ModelPath)
	assert.Equal(t, 320, got.InputSize)
	assert.InDelta(t, 0.4, got.ConfidenceThreshold, 1e-6)
	assert.InDelta(t, 0.5, got.IoUThreshold, 1e-6)
	assert.Equal(t, []string{"hole", "stain"}, got.ClassNames)

	assert.True(t, c.Capability().Available())
	assert.Same(t, cfg, c.Config())

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	assert.Equal(t, http.StatusOK, w.Code, "history is wired when a database path is set")

	require.NoError(t, c.Close())
	assert.True(t, fake.Closed())
}

func TestNewContainer_WithoutHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.HistoryDBPath = ""

	c, err := newContainer(cfg, func(detector.Config) *detector.Capability {
		return detector.Absent(detector.ReasonDependencyMissing, errors.New("no runtime"))
	})
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.Capability().Available())

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "YOLO is not installed. Only basic image upload will be available.")
	assert.Equal(t, 1, c.Store().Len())
}

func TestDetectorConfig_Defaults(t *testing.T) {
	dc := detectorConfig(&config.Config{ConfidenceThreshold: 0.25, IoUThreshold: 0.7})
	assert.Equal(t, "weights/bestYOLOv8.onnx", dc.ModelPath)
	assert.Equal(t, 640, dc.InputSize)
}
