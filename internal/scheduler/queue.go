package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storygen-backend/internal/queue"
)

// Queue schedules continuations as delayed queue messages. Delays beyond what the backend
// accepts are clamped; the consumer re-defers if the stage is still limited.
type Queue struct {
	Client queue.Client
	now    func() time.Time
}

// NewQueue constructs a Queue scheduler.
func NewQueue(client queue.Client) *Queue {
	return &Queue{Client: client, now: func() time.Time { return time.Now().UTC() }}
}

// Schedule sends a continuation message for subjectID.
func (q *Queue) Schedule(ctx context.Context, delay time.Duration, subjectID string) error {
	if delay > queue.MaxDelay {
		delay = queue.MaxDelay
	}
	msg := queue.NewContinuation(subjectID, uuid.NewString(), q.now(), delay)
	if err := q.Client.Send(ctx, msg, delay); err != nil {
		return fmt.Errorf("enqueue continuation: %w", err)
	}
	return nil
}
