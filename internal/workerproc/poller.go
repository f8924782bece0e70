package workerproc

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"storygen-backend/internal/queue"
	"storygen-backend/internal/shared/telemetry"
)

// ErrDrainTimeout is returned by Run when in-flight passes outlive the drain window.
var ErrDrainTimeout = errors.New("worker drain timed out")

// Source is a pull-based continuation queue.
type Source interface {
	Receive(ctx context.Context) ([]queue.Delivery, error)
	Ack(ctx context.Context, d queue.Delivery) error
}

// Poller receives continuations until its context ends and runs up to
// Concurrency passes at once.
type Poller struct {
	Source      Source
	Advancer    Advancer
	Concurrency int
	// Drain bounds the wait for in-flight passes after shutdown.
	Drain time.Duration
	// Backoff is the pause after a failed Receive.
	Backoff time.Duration
}

// Run blocks until ctx is canceled and in-flight passes finish or Drain elapses.
func (p *Poller) Run(ctx context.Context) error {
	// Passes already started keep running after shutdown so their bookkeeping lands.
	work := context.WithoutCancel(ctx)
	var group errgroup.Group
	group.SetLimit(max(1, p.Concurrency))

	for ctx.Err() == nil {
		batch, err := p.Source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			telemetry.Error("worker.receive.failed", map[string]any{"error": err})
			p.pause(ctx)
			continue
		}
		for _, d := range batch {
			group.Go(func() error {
				p.handle(work, d)
				return nil
			})
		}
	}

	return p.drain(&group)
}

func (p *Poller) handle(ctx context.Context, d queue.Delivery) {
	fields := map[string]any{"sqs_message_id": d.ID, "receive_count": d.ReceiveCount}
	res := Process(ctx, p.Advancer, d.Body, fields)
	if res.Disposition == Retry {
		return
	}
	if err := p.Source.Ack(ctx, d); err != nil {
		telemetry.Error("worker.continuation.ack_failed", telemetry.Merge(fields, map[string]any{
			"subject_id":  res.Message.SubjectID,
			"disposition": res.Disposition.String(),
			"error":       err,
		}))
	}
}

func (p *Poller) pause(ctx context.Context) {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Poller) drain(group *errgroup.Group) error {
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	if p.Drain <= 0 {
		<-done
		return nil
	}
	t := time.NewTimer(p.Drain)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return ErrDrainTimeout
	}
}
