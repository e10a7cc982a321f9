package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Layout selects how the result column is populated
type Layout string

const (
	// LayoutPersistent renders the session result slot on every page load
	LayoutPersistent Layout = "persistent"
	// LayoutEphemeral shows a result only in the response of the detect action
	LayoutEphemeral Layout = "ephemeral"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// Page
	Title  string
	Layout Layout

	// Detector
	ModelPath           string
	RuntimeLibraryPath  string
	ConfidenceThreshold float64
	IoUThreshold        float64
	InputSize           int
	ClassNames          []string
	IntraOpThreads      int

	// Session
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	SessionCookieName    string

	// History
	HistoryDBPath string

	// Result archive (disabled when the account is empty)
	AzureAccountName string
	AzureAccountKey  string
	AzureContainer   string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// ArchiveEnabled reports whether annotated results are uploaded to blob storage
func (c *Config) ArchiveEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

func LoadFromEnv() (*Config, error) {
	// A missing .env file is not an error; the process environment wins over it.
	envFile := getEnvOrDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{
		Host:                 getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                 getEnvOrDefault("PORT", "8080"),
		RequestTimeout:       parseDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),
		MaxRequestBodySize:   parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 32*1024*1024), // 32MB
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		Title:                getEnvOrDefault("PAGE_TITLE", "Textile Defect Detection System"),
		Layout:               Layout(strings.ToLower(getEnvOrDefault("LAYOUT", string(LayoutPersistent)))),
		ModelPath:            getEnvOrDefault("MODEL_PATH", "weights/bestYOLOv8.onnx"),
		RuntimeLibraryPath:   getEnvOrDefault("ONNXRUNTIME_LIB", ""),
		ConfidenceThreshold:  parseFloatOrDefault("CONFIDENCE_THRESHOLD", 0.25),
		IoUThreshold:         parseFloatOrDefault("IOU_THRESHOLD", 0.7),
		InputSize:            int(parseIntOrDefault("INPUT_SIZE", 640)),
		ClassNames:           parseListOrDefault("CLASS_NAMES", nil),
		IntraOpThreads:       int(parseIntOrDefault("INTRA_OP_THREADS", 0)),
		SessionTTL:           parseDurationOrDefault("SESSION_TTL", 30*time.Minute),
		SessionSweepInterval: parseDurationOrDefault("SESSION_SWEEP_INTERVAL", time.Minute),
		SessionCookieName:    getEnvOrDefault("SESSION_COOKIE", "defect_session"),
		HistoryDBPath:        getEnvOrDefault("HISTORY_DB_PATH", "data/history.db"),
		AzureAccountName:     os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:      os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:       getEnvOrDefault("AZURE_STORAGE_CONTAINER", "detections"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail late at request time
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.SessionTTL <= 0 || c.SessionSweepInterval <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, session_ttl=%s, sweep=%s)",
			c.RequestTimeout, c.SessionTTL, c.SessionSweepInterval)
	}
	if c.Layout != LayoutPersistent && c.Layout != LayoutEphemeral {
		return fmt.Errorf("LAYOUT must be %q or %q (got %q)", LayoutPersistent, LayoutEphemeral, c.Layout)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0, 1] (got %v)", c.ConfidenceThreshold)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("IOU_THRESHOLD must be within [0, 1] (got %v)", c.IoUThreshold)
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("INPUT_SIZE must be a positive multiple of 32 (got %d)", c.InputSize)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
