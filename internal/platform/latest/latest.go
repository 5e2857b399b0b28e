// Package latest implements "last request wins" cancellation: starting a new
// request cancels the one still in flight.
package latest

import (
	"context"
	"sync"
)

type Tracker struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Begin derives a context for a new request and cancels the previous one.
// The returned done func must be called when the request finishes.
func (t *Tracker) Begin(parent context.Context) (ctx context.Context, id uint64, done func()) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.seq++
	id = t.seq
	t.cancel = cancel
	t.mu.Unlock()

	return ctx, id, func() {
		t.mu.Lock()
		if t.seq == id {
			t.cancel = nil
		}
		t.mu.Unlock()
		cancel()
	}
}

// IsCurrent reports whether id belongs to the most recent request.
func (t *Tracker) IsCurrent(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq == id
}

// Stop cancels the in-flight request, if any.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
