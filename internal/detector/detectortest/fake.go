// Package detectortest provides an in-memory detector for tests.
package detectortest

import (
	"context"
	"sync"
	"time"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
)

// Fake records calls and returns canned boxes. Set Err to fail every call,
// Empty to return no results, or Panic to panic inside Predict.
type Fake struct {
	mu     sync.Mutex
	Boxes  []detector.Box
	Labels []string
	Speed  time.Duration
	Err    error
	Empty  bool
	Panic  string
	calls  int
	inputs []*pixbuf.Buffer
	closed bool
}

func (f *Fake) Predict(ctx context.Context, buf *pixbuf.Buffer) ([]detector.Result, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, buf)
	boxes, err, empty, panicMsg, speed := f.Boxes, f.Err, f.Empty, f.Panic, f.Speed
	f.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}
	return []detector.Result{{Source: buf, Boxes: boxes, Speed: speed}}, nil
}

func (f *Fake) Names() []string {
	return f.Labels
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns how many times Predict ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastInput returns the buffer passed to the most recent Predict call.
func (f *Fake) LastInput() *pixbuf.Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return nil
	}
	return f.inputs[len(f.inputs)-1]
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
