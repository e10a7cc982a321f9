package validation

import (
	"path/filepath"
	"strings"

	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
)

// DefaultExtensions are the upload extensions the detector page accepts
var DefaultExtensions = []string{"jpg", "jpeg", "png"}

// UploadValidator handles upload filename filtering. Only the extension is
// checked; content is validated by decoding.
type UploadValidator struct {
	allowedExtensions []string
}

// NewUploadValidator creates an upload validator accepting DefaultExtensions
func NewUploadValidator() *UploadValidator {
	return NewUploadValidatorWithOptions(DefaultExtensions)
}

// NewUploadValidatorWithOptions creates an upload validator with custom extensions
func NewUploadValidatorWithOptions(extensions []string) *UploadValidator {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		normalized = append(normalized, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	return &UploadValidator{allowedExtensions: normalized}
}

// AllowedExtensions returns the accepted extensions without the leading dot
func (v *UploadValidator) AllowedExtensions() []string {
	out := make([]string, len(v.allowedExtensions))
	copy(out, v.allowedExtensions)
	return out
}

// ValidateUpload checks the filename extension and that some bytes were sent
func (v *UploadValidator) ValidateUpload(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return apperrors.NewValidationError("Filename cannot be empty", nil)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !v.isExtensionAllowed(ext) {
		return apperrors.NewUnsupportedMediaError("File type not allowed", nil).
			WithDetails("accepted: " + strings.Join(v.allowedExtensions, ", "))
	}

	if size == 0 {
		return apperrors.NewValidationError("No image data provided", nil)
	}

	return nil
}

// isExtensionAllowed checks if the extension is in the allowed list
func (v *UploadValidator) isExtensionAllowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range v.allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
