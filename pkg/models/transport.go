package models

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DetectionBox is one detected object in source image pixels
type DetectionBox struct {
	Label      string     `json:"label"`
	ClassID    int        `json:"class_id"`
	Confidence float32    `json:"confidence"`
	BBox       [4]float32 `json:"bbox"` // x1, y1, x2, y2
}

// DetectResponse represents the response of the one-shot detect endpoint
type DetectResponse struct {
	Filename          string         `json:"filename"`
	Format            string         `json:"format"`
	Mode              string         `json:"mode"`
	Width             int            `json:"width"`
	Height            int            `json:"height"`
	Timestamp         string         `json:"timestamp"`
	ProcessingTimeSec float64        `json:"processing_time_sec"`
	Boxes             []DetectionBox `json:"boxes"`
	// Image is the annotated result as base64 PNG
	Image string `json:"image,omitempty"`
}

// DetectorStatus describes the detector capability decided at startup
type DetectorStatus struct {
	Available bool     `json:"available"`
	Reason    string   `json:"reason,omitempty"`
	Message   string   `json:"message,omitempty"`
	ModelPath string   `json:"model_path,omitempty"`
	Classes   []string `json:"classes,omitempty"`
}

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Time     string         `json:"time"`
	Detector DetectorStatus `json:"detector"`
	Sessions int            `json:"sessions"`
}

// Run is one entry of the detection history
type Run struct {
	ID                int64          `json:"id"`
	SessionID         string         `json:"session_id"`
	Filename          string         `json:"filename"`
	Format            string         `json:"format"`
	Mode              string         `json:"mode"`
	Width             int            `json:"width"`
	Height            int            `json:"height"`
	Status            string         `json:"status"`
	BoxCount          int            `json:"box_count"`
	Boxes             []DetectionBox `json:"boxes,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ProcessingTimeSec float64        `json:"processing_time_sec"`
	ArchiveURL        string         `json:"archive_url,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// HistoryResponse lists recent detection runs, newest first
type HistoryResponse struct {
	Runs  []Run `json:"runs"`
	Count int   `json:"count"`
}

// StatsResponse combines in-process counters with persisted run totals
type StatsResponse struct {
	Process map[string]interface{} `json:"process"`
	History map[string]int64       `json:"history,omitempty"`
}
