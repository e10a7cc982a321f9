// Package session keeps per-visitor UI state: the current upload, the
// persisted result slot and pending notices.
package session

import (
	"sync"
	"time"

	"github.com/anime-shed/defect-inspector-go/internal/ingest"
	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
)

// State is the detection state of a session.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateDisplayed State = "displayed"
	StateFailed    State = "failed"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a message shown to the user once.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// ResultSlot is the last successful detection of a session.
type ResultSlot struct {
	Image *pixbuf.Buffer
	PNG   []byte
	Boxes int
	// Inference is the detector's own timing, excluding rendering
	Inference time.Duration
	CreatedAt time.Time
}

// Session is one visitor's state. Getters and setters are safe for
// concurrent use; BeginRun/EndRun serialize detection actions.
type Session struct {
	ID        string
	CreatedAt time.Time

	run sync.Mutex

	mu       sync.RWMutex
	state    State
	upload   *ingest.UploadedImage
	uploaded time.Time
	result   *ResultSlot
	notices  []Notice
	lastSeen time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, lastSeen: now, state: StateIdle}
}

// BeginRun blocks until no other detection runs on this session.
func (s *Session) BeginRun() { s.run.Lock() }

// EndRun releases the lock taken by BeginRun.
func (s *Session) EndRun() { s.run.Unlock() }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) Upload() *ingest.UploadedImage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upload
}

// SetUpload replaces the current image and returns the flow to idle. The
// result slot is left alone.
func (s *Session) SetUpload(upload *ingest.UploadedImage) {
	s.mu.Lock()
	s.upload = upload
	s.uploaded = time.Now()
	s.state = StateIdle
	s.mu.Unlock()
}

// UploadedAt is when the current image was set, zero without one.
func (s *Session) UploadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploaded
}

func (s *Session) Result() *ResultSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Session) SetResult(result *ResultSlot) {
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
}

// AddNotices queues notices for the next page render.
func (s *Session) AddNotices(notices ...Notice) {
	if len(notices) == 0 {
		return
	}
	s.mu.Lock()
	s.notices = append(s.notices, notices...)
	s.mu.Unlock()
}

// PopNotices returns and clears the queued notices.
func (s *Session) PopNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen is the time of the last store lookup.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
