package repository

import (
	"context"
	"time"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
)

// RunStatus is the outcome of a detection run
type RunStatus string

const (
	// RunCompleted when the annotated result was stored
	RunCompleted RunStatus = "completed"
	// RunFailed when conversion or inference raised an error
	RunFailed RunStatus = "failed"
)

// DetectionRunRepository defines the interface for detection history operations
type DetectionRunRepository interface {
	// SaveRun stores a run with its boxes and returns the new id
	SaveRun(ctx context.Context, run *DetectionRun) (int64, error)

	// GetRun retrieves one run including its boxes
	GetRun(ctx context.Context, id int64) (*DetectionRun, error)

	// ListRuns retrieves the most recent runs, newest first, without boxes
	ListRuns(ctx context.Context, limit int) ([]*DetectionRun, error)

	// CountByStatus returns the number of runs per status
	CountByStatus(ctx context.Context) (map[RunStatus]int64, error)

	Close() error
}

// DetectionRun represents one press of the detect action
type DetectionRun struct {
	ID             int64          `json:"id"`
	SessionID      string         `json:"session_id"`
	Filename       string         `json:"filename"`
	Format         string         `json:"format"`
	Mode           string         `json:"mode"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Status         RunStatus      `json:"status"`
	BoxCount       int            `json:"box_count"`
	Boxes          []detector.Box `json:"boxes,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ProcessingTime time.Duration  `json:"processing_time"`
	ArchiveURL     string         `json:"archive_url,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
