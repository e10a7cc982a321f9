// Package ingest turns an uploaded byte stream into a decoded RGB image.
package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"

	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
	"github.com/anime-shed/defect-inspector-go/pkg/validation"
)

// UploadedImage is an upload owned by one UI session.
type UploadedImage struct {
	Filename string
	MimeType string
	Data     []byte

	// Format is the sniffed container format, "JPEG" or "PNG".
	Format string
	// Mode is the source color mode before normalization ("L", "RGB", "RGBA", "P", "CMYK", "I;16").
	Mode   string
	Width  int
	Height int

	// Pixels is always 3-channel RGB.
	Pixels *pixbuf.Buffer
}

// Describe renders the diagnostics line shown when a detection fails.
func (u *UploadedImage) Describe() string {
	return fmt.Sprintf("Image mode: %s, Size: (%d, %d), Format: %s", u.Mode, u.Width, u.Height, u.Format)
}

// Ingestor validates, decodes and normalizes uploads.
type Ingestor struct {
	validator *validation.UploadValidator
}

func NewIngestor(validator *validation.UploadValidator) *Ingestor {
	if validator == nil {
		validator = validation.NewUploadValidator()
	}
	return &Ingestor{validator: validator}
}

// Ingest decodes data and normalizes it to RGB. Only the filename extension
// is filtered up front; malformed content surfaces as a processing error.
// Pixels are kept in stored order: EXIF orientation is not applied.
func (i *Ingestor) Ingest(filename, mimeType string, data []byte) (*UploadedImage, error) {
	if err := i.validator.ValidateUpload(filename, int64(len(data))); err != nil {
		return nil, err
	}
	if _, err := imaging.FormatFromFilename(filename); err != nil {
		return nil, apperrors.NewUnsupportedMediaError("File type not allowed", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to decode image", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to decode image", err)
	}

	pixels, err := pixbuf.FromImage(img).EnsureRGB()
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to convert image to RGB", err)
	}

	return &UploadedImage{
		Filename: filename,
		MimeType: mimeType,
		Data:     data,
		Format:   strings.ToUpper(format),
		Mode:     colorMode(cfg.ColorModel, img),
		Width:    cfg.Width,
		Height:   cfg.Height,
		Pixels:   pixels,
	}, nil
}

type opaquer interface {
	Opaque() bool
}

func colorMode(model color.Model, img image.Image) string {
	if _, ok := model.(color.Palette); ok {
		return "P"
	}

	switch model {
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.YCbCrModel:
		return "RGB"
	case color.CMYKModel:
		return "CMYK"
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		// PNG truecolor without an alpha chunk decodes to RGBA as well.
		if o, ok := img.(opaquer); ok && o.Opaque() {
			return "RGB"
		}
		return "RGBA"
	}
	return "unknown"
}
