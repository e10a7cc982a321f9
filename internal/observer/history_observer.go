package observer

import (
	"context"

	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/repository"
)

// HistoryObserver records finished detection runs.
type HistoryObserver struct {
	repo repository.DetectionRunRepository
}

func NewHistoryObserver(repo repository.DetectionRunRepository) *HistoryObserver {
	return &HistoryObserver{repo: repo}
}

// OnEvent stores completed and failed runs; other events are ignored.
func (o *HistoryObserver) OnEvent(ctx context.Context, event DetectionEvent) {
	var status repository.RunStatus
	switch event.EventType {
	case DetectionCompleted:
		status = repository.RunCompleted
	case DetectionFailed:
		status = repository.RunFailed
	default:
		return
	}

	run := &repository.DetectionRun{
		SessionID:      event.SessionID,
		Filename:       event.Filename,
		Format:         event.Format,
		Mode:           event.Mode,
		Width:          event.Width,
		Height:         event.Height,
		Status:         status,
		Boxes:          event.Boxes,
		ErrorMessage:   event.ErrorMessage,
		ProcessingTime: event.ProcessingTime,
		ArchiveURL:     event.ArchiveURL,
		CreatedAt:      event.Timestamp,
	}
	if _, err := o.repo.SaveRun(ctx, run); err != nil {
		logger.WithError(err).WithField("session_id", event.SessionID).Error("Failed to record detection run")
	}
}

func (o *HistoryObserver) GetObserverName() string {
	return "history_observer"
}
