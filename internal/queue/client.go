package queue

import (
	"context"
	"time"
)

// Client sends messages to a queue backend. Delivery is at least once.
type Client interface {
	Send(ctx context.Context, msg Message, delay time.Duration) error
}
