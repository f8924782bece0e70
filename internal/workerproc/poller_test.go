package workerproc

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen-backend/internal/generation"
	"storygen-backend/internal/queue"
	"storygen-backend/internal/shared/telemetry"
)

// scriptedSource hands out one batch per Receive call, then cancels the run.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]queue.Delivery
	errs    []error
	acked   []string
	cancel  context.CancelFunc
}

func (s *scriptedSource) Receive(context.Context) ([]queue.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.batches) == 0 {
		s.cancel()
		return nil, context.Canceled
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func (s *scriptedSource) Ack(_ context.Context, d queue.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, d.ID)
	return nil
}

func TestPollerAcksAllButRetries(t *testing.T) {
	t.Cleanup(telemetry.SetOutput(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{
		cancel: cancel,
		errs:   []error{errors.New("sqs unavailable")},
		batches: [][]queue.Delivery{
			{{ID: "m1", Body: `{"subjectId":"s1"}`}, {ID: "m2", Body: `{"subjectId":"down"}`}},
			{{ID: "m3", Body: `not json`}},
		},
	}
	adv := &fakeAdvancer{
		out:    generation.Outcome{Status: generation.StatusReady},
		errFor: map[string]error{"down": errors.New("database down")},
	}

	p := &Poller{Source: src, Advancer: adv, Concurrency: 2, Backoff: time.Millisecond}
	require.NoError(t, p.Run(ctx))

	assert.ElementsMatch(t, []string{"m1", "m3"}, src.acked)
	assert.ElementsMatch(t, []string{"s1", "down"}, adv.calls)
}

type blockingAdvancer struct{ release chan struct{} }

func (b blockingAdvancer) Advance(context.Context, string) (generation.Outcome, error) {
	<-b.release
	return generation.Outcome{Status: generation.StatusReady}, nil
}

func TestPollerDrainTimeout(t *testing.T) {
	t.Cleanup(telemetry.SetOutput(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{cancel: cancel, batches: [][]queue.Delivery{{{ID: "m1", Body: `{"subjectId":"s1"}`}}}}
	adv := blockingAdvancer{release: make(chan struct{})}
	defer close(adv.release)

	p := &Poller{Source: src, Advancer: adv, Drain: 20 * time.Millisecond}
	assert.ErrorIs(t, p.Run(ctx), ErrDrainTimeout)
}
