// Package flow sequences upload, inference and display for one session.
//
// A session moves idle -> running -> displayed|failed on each detect
// action. The detect action is rejected without a state change when no
// image has been uploaded or the detector capability is absent.
package flow

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/ingest"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/observer"
	"github.com/anime-shed/defect-inspector-go/internal/session"
	"github.com/anime-shed/defect-inspector-go/internal/storage"
)

const (
	MsgUploadFirst      = "Please upload an image first"
	MsgUnavailable      = "YOLO model is not available. Please check your installation."
	msgDetectionFailure = "Error during detection: %v"
)

// Outcome describes what one detect action did.
type Outcome struct {
	State          session.State
	Notices        []session.Notice
	Result         *session.ResultSlot
	Boxes          []detector.Box
	DetectorCalled bool
}

// Rejected reports whether a precondition blocked the action.
func (o Outcome) Rejected() bool {
	return !o.DetectorCalled
}

// Flow is the detection state machine. It is safe for concurrent use across
// sessions.
type Flow struct {
	capability *detector.Capability
	ingestor   *ingest.Ingestor
	events     observer.Subject
	archive    storage.ResultArchive
	now        func() time.Time
}

// New builds a flow. A nil archive disables archiving and nil events
// drops notifications.
func New(capability *detector.Capability, ingestor *ingest.Ingestor, events observer.Subject, archive storage.ResultArchive) *Flow {
	if ingestor == nil {
		ingestor = ingest.NewIngestor(nil)
	}
	if archive == nil {
		archive = storage.NewNoopArchive()
	}
	return &Flow{
		capability: capability,
		ingestor:   ingestor,
		events:     events,
		archive:    archive,
		now:        time.Now,
	}
}

// Capability returns the detector capability decided at startup.
func (f *Flow) Capability() *detector.Capability {
	return f.capability
}

func (f *Flow) publish(ctx context.Context, event observer.DetectionEvent) {
	if f.events == nil {
		return
	}
	event.Timestamp = f.now()
	f.events.NotifyObservers(ctx, event)
}

func uploadEvent(t observer.EventType, sessionID string, upload *ingest.UploadedImage) observer.DetectionEvent {
	e := observer.DetectionEvent{EventType: t, SessionID: sessionID}
	if upload != nil {
		e.Filename = upload.Filename
		e.Format = upload.Format
		e.Mode = upload.Mode
		e.Width = upload.Width
		e.Height = upload.Height
	}
	return e
}

// Ingest decodes an upload without storing it anywhere.
func (f *Flow) Ingest(filename, mimeType string, data []byte) (*ingest.UploadedImage, error) {
	return f.ingestor.Ingest(filename, mimeType, data)
}

// Upload ingests a file into the session, replacing the previous image.
// The result slot is not touched.
func (f *Flow) Upload(ctx context.Context, sess *session.Session, filename, mimeType string, data []byte) (*ingest.UploadedImage, error) {
	upload, err := f.ingestor.Ingest(filename, mimeType, data)
	if err != nil {
		e := uploadEvent(observer.ImageRejected, sess.ID, nil)
		e.Filename = filename
		e.ErrorMessage = err.Error()
		f.publish(ctx, e)
		return nil, err
	}

	sess.SetUpload(upload)
	f.publish(ctx, uploadEvent(observer.ImageUploaded, sess.ID, upload))
	return upload, nil
}

// preconditions returns a warning for every unmet requirement.
func (f *Flow) preconditions(upload *ingest.UploadedImage) []session.Notice {
	var notices []session.Notice
	if upload == nil {
		notices = append(notices, session.Notice{Level: session.LevelWarning, Message: MsgUploadFirst})
	}
	if !f.capability.Available() {
		notices = append(notices, session.Notice{Level: session.LevelWarning, Message: MsgUnavailable})
	}
	return notices
}

// Detect runs the detect action for a session. Detect never returns an
// error: failures become notices and the previous result slot is kept.
func (f *Flow) Detect(ctx context.Context, sess *session.Session) Outcome {
	sess.BeginRun()
	defer sess.EndRun()

	upload := sess.Upload()
	if notices := f.preconditions(upload); len(notices) > 0 {
		e := uploadEvent(observer.DetectionRejected, sess.ID, upload)
		e.ErrorMessage = notices[0].Message
		f.publish(ctx, e)
		return Outcome{State: sess.State(), Notices: notices}
	}

	sess.SetState(session.StateRunning)
	f.publish(ctx, uploadEvent(observer.DetectionStarted, sess.ID, upload))

	start := f.now()
	slot, boxes, err := f.run(ctx, upload)
	elapsed := f.now().Sub(start)

	if err != nil {
		sess.SetState(session.StateFailed)

		e := uploadEvent(observer.DetectionFailed, sess.ID, upload)
		e.ProcessingTime = elapsed
		e.ErrorMessage = err.Error()
		f.publish(ctx, e)

		return Outcome{
			State:          session.StateFailed,
			DetectorCalled: true,
			Notices: []session.Notice{
				{Level: session.LevelError, Message: fmt.Sprintf(msgDetectionFailure, err)},
				{Level: session.LevelInfo, Message: upload.Describe()},
			},
		}
	}

	sess.SetResult(slot)
	sess.SetState(session.StateDisplayed)

	e := uploadEvent(observer.DetectionCompleted, sess.ID, upload)
	e.ProcessingTime = elapsed
	e.Success = true
	e.Boxes = boxes
	e.Metadata = inferenceMetadata(slot)
	e.ArchiveURL = f.archiveResult(ctx, sess.ID, slot)
	f.publish(ctx, e)

	return Outcome{
		State:          session.StateDisplayed,
		Result:         slot,
		Boxes:          boxes,
		DetectorCalled: true,
	}
}

// DetectOnce runs inference on an upload without touching any session.
func (f *Flow) DetectOnce(ctx context.Context, upload *ingest.UploadedImage) (*session.ResultSlot, []detector.Box, error) {
	if !f.capability.Available() {
		return nil, nil, apperrors.NewUnavailableError(MsgUnavailable, f.capability.Reason())
	}

	f.publish(ctx, uploadEvent(observer.DetectionStarted, "", upload))
	start := f.now()
	slot, boxes, err := f.run(ctx, upload)

	e := uploadEvent(observer.DetectionCompleted, "", upload)
	e.ProcessingTime = f.now().Sub(start)
	if err != nil {
		e.EventType = observer.DetectionFailed
		e.ErrorMessage = err.Error()
		f.publish(ctx, e)
		return nil, nil, apperrors.NewProcessingError(fmt.Sprintf(msgDetectionFailure, err), err)
	}
	e.Success = true
	e.Boxes = boxes
	e.Metadata = inferenceMetadata(slot)
	f.publish(ctx, e)
	return slot, boxes, nil
}

// run converts, infers and renders. Panics from the detector are turned
// into errors.
func (f *Flow) run(ctx context.Context, upload *ingest.UploadedImage) (slot *session.ResultSlot, boxes []detector.Box, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Detector panicked")
			slot, boxes, err = nil, nil, fmt.Errorf("detector panic: %v", r)
		}
	}()

	buf, err := upload.Pixels.EnsureRGB()
	if err != nil {
		return nil, nil, fmt.Errorf("convert to RGB: %w", err)
	}

	results, err := f.capability.Detector().Predict(ctx, buf)
	if err != nil {
		return nil, nil, err
	}
	if len(results) == 0 {
		return nil, nil, detector.ErrNoResults
	}

	first := results[0]
	if first.Source == nil {
		first.Source = buf
	}
	annotated, err := first.Render()
	if err != nil {
		return nil, nil, fmt.Errorf("render result: %w", err)
	}

	var png bytes.Buffer
	if err := imaging.Encode(&png, annotated.ToRGBA(), imaging.PNG); err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}

	return &session.ResultSlot{
		Image:     annotated,
		PNG:       png.Bytes(),
		Boxes:     len(first.Boxes),
		Inference: first.Speed,
		CreatedAt: f.now(),
	}, first.Boxes, nil
}

func inferenceMetadata(slot *session.ResultSlot) map[string]interface{} {
	return map[string]interface{}{"inference_ms": slot.Inference.Milliseconds()}
}

func (f *Flow) archiveResult(ctx context.Context, sessionID string, slot *session.ResultSlot) string {
	url, err := f.archive.Archive(ctx, sessionID, slot.PNG)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{"session_id": sessionID}).Warn("Failed to archive detection result")
		return ""
	}
	return url
}
