package ingest

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func filledRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func filledGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestIngest_NormalizesToRGB(t *testing.T) {
	translucent := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(translucent.Pix); i += 4 {
		translucent.Pix[i], translucent.Pix[i+1], translucent.Pix[i+2], translucent.Pix[i+3] = 200, 100, 50, 128
	}

	paletted := image.NewPaletted(image.Rect(0, 0, 8, 8), palette.Plan9)
	paletted.SetColorIndex(0, 0, 3)

	tests := []struct {
		name     string
		filename string
		data     []byte
		mode     string
		format   string
		width    int
		height   int
	}{
		{"rgb jpeg", "rgb.jpg", encodeJPEG(t, filledRGBA(640, 480, color.RGBA{200, 30, 30, 255})), "RGB", "JPEG", 640, 480},
		{"gray jpeg", "gray.jpeg", encodeJPEG(t, filledGray(32, 16, 90)), "L", "JPEG", 32, 16},
		{"gray png", "gray.png", encodePNG(t, filledGray(200, 200, 128)), "L", "PNG", 200, 200},
		{"opaque rgb png", "rgb.PNG", encodePNG(t, filledRGBA(10, 12, color.RGBA{1, 2, 3, 255})), "RGB", "PNG", 10, 12},
		{"rgba png", "alpha.png", encodePNG(t, translucent), "RGBA", "PNG", 8, 8},
		{"paletted png", "palette.png", encodePNG(t, paletted), "P", "PNG", 8, 8},
	}

	ingestor := NewIngestor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upload, err := ingestor.Ingest(tt.filename, "image/whatever", tt.data)
			require.NoError(t, err)

			assert.Equal(t, tt.mode, upload.Mode)
			assert.Equal(t, tt.format, upload.Format)
			assert.Equal(t, tt.width, upload.Width)
			assert.Equal(t, tt.height, upload.Height)

			require.NoError(t, upload.Pixels.Validate())
			assert.Equal(t, 3, upload.Pixels.Channels)
			assert.Equal(t, tt.width, upload.Pixels.Width)
			assert.Equal(t, tt.height, upload.Pixels.Height)
		})
	}
}

func TestIngest_GrayValuesAreReplicated(t *testing.T) {
	upload, err := NewIngestor(nil).Ingest("g.png", "image/png", encodePNG(t, filledGray(4, 4, 77)))
	require.NoError(t, err)

	r, g, b := upload.Pixels.RGB(2, 2)
	assert.Equal(t, [3]uint8{77, 77, 77}, [3]uint8{r, g, b})
}

func TestIngest_AlphaIsDropped(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	upload, err := NewIngestor(nil).Ingest("a.png", "image/png", encodePNG(t, img))
	require.NoError(t, err)

	r, g, b := upload.Pixels.RGB(0, 0)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, g, b})
}

func TestIngest_Errors(t *testing.T) {
	valid := encodePNG(t, filledGray(2, 2, 0))

	tests := []struct {
		name      string
		filename  string
		data      []byte
		errorType apperrors.ErrorType
	}{
		{"extension outside the list", "image.gif", valid, apperrors.ErrorTypeUnsupportedMedia},
		{"empty payload", "image.png", nil, apperrors.ErrorTypeValidation},
		{"garbage content", "image.jpg", []byte("definitely not a jpeg"), apperrors.ErrorTypeProcessing},
		{"truncated png", "image.png", valid[:20], apperrors.ErrorTypeProcessing},
	}

	ingestor := NewIngestor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingestor.Ingest(tt.filename, "", tt.data)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.errorType), "got %v", err)
		})
	}
}

func TestUploadedImage_Describe(t *testing.T) {
	upload := &UploadedImage{Mode: "L", Width: 200, Height: 100, Format: "PNG"}
	assert.Equal(t, "Image mode: L, Size: (200, 100), Format: PNG", upload.Describe())
}

// withOrientation splices an EXIF APP1 segment carrying the given
// orientation tag right after the JPEG SOI marker.
func withOrientation(t *testing.T, jpg []byte, orientation byte) []byte {
	t.Helper()
	require.Equal(t, []byte{0xFF, 0xD8}, jpg[:2])

	payload := []byte("Exif\x00\x00")
	payload = append(payload, 'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08)
	payload = append(payload, 0x00, 0x01)
	payload = append(payload, 0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, orientation, 0x00, 0x00)
	payload = append(payload, 0x00, 0x00, 0x00, 0x00)

	segment := []byte{0xFF, 0xE1, 0x00, byte(len(payload) + 2)}
	segment = append(segment, payload...)

	out := append([]byte{0xFF, 0xD8}, segment...)
	return append(out, jpg[2:]...)
}

func TestIngest_KeepsStoredOrientation(t *testing.T) {
	src := filledRGBA(40, 20, color.RGBA{R: 120, G: 60, B: 30, A: 255})
	data := withOrientation(t, encodeJPEG(t, src), 6)

	upload, err := NewIngestor(nil).Ingest("rotated.jpg", "image/jpeg", data)
	require.NoError(t, err)

	assert.Equal(t, 40, upload.Width)
	assert.Equal(t, 20, upload.Height)
	assert.Equal(t, 40, upload.Pixels.Width)
	assert.Equal(t, 20, upload.Pixels.Height)
	assert.Equal(t, "Image mode: RGB, Size: (40, 20), Format: JPEG", upload.Describe())
}
