// Package scheduler delivers deferred continuations, either in process or through a queue.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"storygen-backend/internal/shared/telemetry"
)

// ErrStopped is returned by Schedule after Stop.
var ErrStopped = errors.New("scheduler stopped")

// RunFunc performs the continuation for a subject.
type RunFunc func(ctx context.Context, subjectID string) error

// Timer fires continuations with time.AfterFunc. At most one continuation is pending per subject;
// a newer schedule replaces the older one. Pending timers are lost when the process exits.
type Timer struct {
	base context.Context
	run  RunFunc

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewTimer constructs a Timer. base is the context continuations run under.
func NewTimer(base context.Context, run RunFunc) *Timer {
	return &Timer{
		base:    base,
		run:     run,
		pending: make(map[string]*time.Timer),
	}
}

// Schedule arranges run(subjectID) after delay.
func (t *Timer) Schedule(ctx context.Context, delay time.Duration, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrStopped
	}
	if prev, ok := t.pending[subjectID]; ok {
		prev.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.pending[subjectID] != timer || t.stopped {
			t.mu.Unlock()
			return
		}
		delete(t.pending, subjectID)
		t.wg.Add(1)
		t.mu.Unlock()
		defer t.wg.Done()

		if err := t.run(t.base, subjectID); err != nil {
			telemetry.Error("scheduler.continuation.failed", map[string]any{
				"subject_id": subjectID,
				"error":      err,
			})
		}
	})
	t.pending[subjectID] = timer
	return nil
}

// Pending reports how many continuations are waiting to fire.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop cancels pending timers and waits for running continuations.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopped = true
	for id, timer := range t.pending {
		timer.Stop()
		delete(t.pending, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}
