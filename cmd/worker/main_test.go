package main

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen-backend/internal/generation"
	"storygen-backend/internal/queue"
	"storygen-backend/internal/shared/config"
	"storygen-backend/internal/shared/telemetry"
)

type oneBatch struct {
	mu     sync.Mutex
	served bool
	acked  []string
	cancel context.CancelFunc
}

func (o *oneBatch) Receive(context.Context) ([]queue.Delivery, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.served {
		o.cancel()
		return nil, context.Canceled
	}
	o.served = true
	body, err := queue.EncodeMessage(queue.NewContinuation("subject-1", "req-1", time.Now(), 0))
	if err != nil {
		return nil, err
	}
	return []queue.Delivery{{ID: "m1", Body: string(body), Receipt: "r1", ReceiveCount: 1}}, nil
}

func (o *oneBatch) Ack(_ context.Context, d queue.Delivery) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acked = append(o.acked, d.Receipt)
	return nil
}

type readyAdvancer struct{}

func (readyAdvancer) Advance(context.Context, string) (generation.Outcome, error) {
	return generation.Outcome{Status: generation.StatusReady}, nil
}

func TestPollerFromConfigProcessesAndAcks(t *testing.T) {
	t.Cleanup(telemetry.SetOutput(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	src := &oneBatch{cancel: cancel}

	p := newPoller(src, readyAdvancer{}, config.Config{WorkerConcurrency: 3, ShutdownTimeout: time.Second})
	assert.Equal(t, 3, p.Concurrency)
	assert.Equal(t, time.Second, p.Drain)

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []string{"r1"}, src.acked)
}
