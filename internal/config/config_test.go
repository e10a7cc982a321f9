package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.ServerAddress() != "0.0.0.0:8080" {
		t.Errorf("Expected 0.0.0.0:8080, got %s", cfg.ServerAddress())
	}
	if cfg.ModelPath != "weights/bestYOLOv8.onnx" {
		t.Errorf("Expected default model path, got %s", cfg.ModelPath)
	}
	if cfg.Layout != LayoutPersistent {
		t.Errorf("Expected persistent layout by default, got %s", cfg.Layout)
	}
	if cfg.InputSize != 640 {
		t.Errorf("Expected input size 640, got %d", cfg.InputSize)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("Expected 30m session TTL, got %s", cfg.SessionTTL)
	}
	if cfg.ArchiveEnabled() {
		t.Error("Expected archive to be disabled without credentials")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LAYOUT", "Ephemeral")
	t.Setenv("CLASS_NAMES", "hole, stain ,,thread")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.4")
	t.Setenv("AZURE_STORAGE_ACCOUNT", "acct")
	t.Setenv("AZURE_STORAGE_KEY", "a2V5")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if cfg.Layout != LayoutEphemeral {
		t.Errorf("Expected ephemeral layout, got %s", cfg.Layout)
	}
	expected := []string{"hole", "stain", "thread"}
	if len(cfg.ClassNames) != len(expected) {
		t.Fatalf("Expected %d class names, got %v", len(expected), cfg.ClassNames)
	}
	for i, name := range expected {
		if cfg.ClassNames[i] != name {
			t.Errorf("Expected class %d to be %s, got %s", i, name, cfg.ClassNames[i])
		}
	}
	if cfg.ConfidenceThreshold != 0.4 {
		t.Errorf("Expected confidence 0.4, got %v", cfg.ConfidenceThreshold)
	}
	if !cfg.ArchiveEnabled() {
		t.Error("Expected archive to be enabled")
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non numeric port", "PORT", "http"},
		{"port out of range", "PORT", "70000"},
		{"unknown layout", "LAYOUT", "grid"},
		{"confidence above one", "CONFIDENCE_THRESHOLD", "1.5"},
		{"input size not multiple of 32", "INPUT_SIZE", "100"},
		{"zero body size", "MAX_REQUEST_BODY_SIZE", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadFromEnv_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MODEL_PATH=/models/custom.onnx\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	os.Unsetenv("MODEL_PATH")
	t.Cleanup(func() { os.Unsetenv("MODEL_PATH") })
	t.Setenv("ENV_FILE", path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.ModelPath != "/models/custom.onnx" {
		t.Errorf("Expected model path from .env, got %s", cfg.ModelPath)
	}
}
