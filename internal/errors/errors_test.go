package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		errorType  ErrorType
		statusCode int
	}{
		{"validation", NewValidationError("bad", nil), ErrorTypeValidation, http.StatusBadRequest},
		{"unsupported media", NewUnsupportedMediaError("gif", nil), ErrorTypeUnsupportedMedia, http.StatusUnsupportedMediaType},
		{"too large", NewTooLargeError("big", nil), ErrorTypeTooLarge, http.StatusRequestEntityTooLarge},
		{"processing", NewProcessingError("decode", nil), ErrorTypeProcessing, http.StatusUnprocessableEntity},
		{"unavailable", NewUnavailableError("no model", nil), ErrorTypeUnavailable, http.StatusServiceUnavailable},
		{"timeout", NewTimeoutError("slow", nil), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"not found", NewNotFoundError("gone", nil), ErrorTypeNotFound, http.StatusNotFound},
		{"internal", NewInternalError("boom", nil), ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.errorType {
				t.Errorf("Expected type %s, got %s", tt.errorType, tt.err.Type)
			}
			if GetStatusCode(tt.err) != tt.statusCode {
				t.Errorf("Expected status %d, got %d", tt.statusCode, GetStatusCode(tt.err))
			}
		})
	}
}

func TestAppError_WrappedLookup(t *testing.T) {
	appErr := NewProcessingError("failed to decode image", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("ingest: %w", appErr)

	if !IsType(wrapped, ErrorTypeProcessing) {
		t.Error("Expected wrapped error to be recognised as processing")
	}
	if GetStatusCode(wrapped) != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", GetStatusCode(wrapped))
	}
	if GetStatusCode(io.EOF) != http.StatusInternalServerError {
		t.Error("Expected plain errors to map to 500")
	}
	if appErr.Unwrap() != io.ErrUnexpectedEOF {
		t.Error("Expected Unwrap to return the cause")
	}
	expected := "processing: failed to decode image (caused by: unexpected EOF)"
	if appErr.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, appErr.Error())
	}
}
