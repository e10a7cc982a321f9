package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
)

// DetectionEvent represents a step of the upload/detect flow
type DetectionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id"`
	Filename       string                 `json:"filename"`
	Format         string                 `json:"format,omitempty"`
	Mode           string                 `json:"mode,omitempty"`
	Width          int                    `json:"width,omitempty"`
	Height         int                    `json:"height,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	Boxes          []detector.Box         `json:"boxes,omitempty"`
	ArchiveURL     string                 `json:"archive_url,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of detection event
type EventType string

const (
	// ImageUploaded when an upload was decoded and stored in the session
	ImageUploaded EventType = "image_uploaded"
	// ImageRejected when an upload could not be ingested
	ImageRejected EventType = "image_rejected"
	// DetectionStarted when inference begins
	DetectionStarted EventType = "detection_started"
	// DetectionCompleted when the annotated result was stored
	DetectionCompleted EventType = "detection_completed"
	// DetectionFailed when conversion or inference failed
	DetectionFailed EventType = "detection_failed"
	// DetectionRejected when a precondition blocked the detect action
	DetectionRejected EventType = "detection_rejected"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event DetectionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event DetectionEvent)
}

// LoggingObserver logs detection events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles detection events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event DetectionEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"session_id":      event.SessionID,
		"filename":        event.Filename,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}

	if event.Width > 0 {
		fields["size"] = []int{event.Width, event.Height}
		fields["mode"] = event.Mode
	}
	if event.EventType == DetectionCompleted {
		fields["boxes"] = len(event.Boxes)
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}

	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case ImageUploaded:
		o.logger.WithFields(fields).Info("Image uploaded")
	case ImageRejected:
		o.logger.WithFields(fields).Warn("Image upload rejected")
	case DetectionStarted:
		o.logger.WithFields(fields).Info("Detection started")
	case DetectionCompleted:
		o.logger.WithFields(fields).Info("Detection completed")
	case DetectionFailed:
		o.logger.WithFields(fields).Error("Detection failed")
	case DetectionRejected:
		o.logger.WithFields(fields).Warn("Detection rejected")
	default:
		o.logger.WithFields(fields).Info("Detection event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from detection events
type MetricsObserver struct {
	mu                  sync.RWMutex
	uploads             int64
	rejectedUploads     int64
	totalDetections     int64
	completedDetections int64
	failedDetections    int64
	rejectedDetections  int64
	totalBoxes          int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles detection events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event DetectionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ImageUploaded:
		o.uploads++
	case ImageRejected:
		o.rejectedUploads++
	case DetectionStarted:
		o.totalDetections++
	case DetectionCompleted:
		o.completedDetections++
		o.totalBoxes += int64(len(event.Boxes))
		o.totalProcessingTime += event.ProcessingTime
	case DetectionFailed:
		o.failedDetections++
	case DetectionRejected:
		o.rejectedDetections++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.completedDetections > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.completedDetections)
	}

	return map[string]interface{}{
		"uploads":                 o.uploads,
		"rejected_uploads":        o.rejectedUploads,
		"total_detections":        o.totalDetections,
		"completed_detections":    o.completedDetections,
		"failed_detections":       o.failedDetections,
		"rejected_detections":     o.rejectedDetections,
		"total_boxes":             o.totalBoxes,
		"total_processing_time":   o.totalProcessingTime.String(),
		"avg_processing_time_sec": avgProcessingTime.Seconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	wg        sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event. Observers run
// concurrently and outlive the request, so they get a context that is not
// cancelled with it.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event DetectionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, observer := range observers {
		p.wg.Add(1)
		go func(obs Observer) {
			defer p.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(detached, event)
		}(observer)
	}
}

// Wait blocks until every in-flight notification has been handled.
func (p *EventPublisher) Wait() {
	p.wg.Wait()
}
