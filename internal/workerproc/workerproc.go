// Package workerproc turns queued continuations into generation passes and decides
// what happens to each message afterwards.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"storygen-backend/internal/generation"
	"storygen-backend/internal/queue"
	"storygen-backend/internal/shared/metrics"
	"storygen-backend/internal/shared/telemetry"
)

// Advancer runs one generation pass for a subject.
type Advancer interface {
	Advance(ctx context.Context, subjectID string) (generation.Outcome, error)
}

// Disposition says what the transport should do with a message after Process.
type Disposition int

const (
	// Ack removes the message. Every pass that ran is acked, failed outcomes included.
	Ack Disposition = iota
	// Retry leaves the message for redelivery.
	Retry
	// Discard removes a message that can never be processed.
	Discard
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	default:
		return "discard"
	}
}

// PoisonError marks a payload no redelivery can fix.
type PoisonError struct {
	Reason  string
	BodyLen int
	BodySHA string
	Err     error
}

func (e *PoisonError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *PoisonError) Unwrap() error { return e.Err }

func poison(reason, body string, err error) *PoisonError {
	p := &PoisonError{Reason: reason, BodyLen: len(body), Err: err}
	if body != "" {
		sum := sha256.Sum256([]byte(body))
		p.BodySHA = hex.EncodeToString(sum[:])
	}
	return p
}

// Decode parses a continuation body. Payloads from a newer producer return
// queue.ErrUnsupportedVersion unwrapped so they are retried, not discarded.
func Decode(body string) (queue.Message, error) {
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, poison("empty_body", body, nil)
	}
	msg, err := queue.DecodeMessage([]byte(body))
	switch {
	case errors.Is(err, queue.ErrUnsupportedVersion):
		return msg, err
	case err != nil:
		return queue.Message{}, poison("malformed", body, err)
	case msg.SubjectID == "":
		return msg, poison("missing_subject", body, nil)
	}
	return msg, nil
}

// Result is the outcome of processing one message.
type Result struct {
	Message     queue.Message
	Outcome     generation.Outcome
	Disposition Disposition
	Err         error
}

// Process decodes body, advances its subject and logs the result. fields carries
// transport identifiers into every log line.
func Process(ctx context.Context, advancer Advancer, body string, fields map[string]any) Result {
	metrics.IncContinuationReceived()

	msg, err := Decode(body)
	fields = telemetry.Merge(fields, map[string]any{"subject_id": msg.SubjectID})
	if msg.RequestID != "" {
		fields["request_id"] = msg.RequestID
	}

	var p *PoisonError
	switch {
	case errors.As(err, &p):
		telemetry.Error("worker.continuation.discarded", telemetry.Merge(fields, map[string]any{
			"error": err, "body_len": p.BodyLen, "body_sha256": p.BodySHA,
		}))
		metrics.IncContinuationDiscarded()
		return Result{Message: msg, Disposition: Discard, Err: err}
	case err != nil:
		telemetry.Warn("worker.continuation.deferred", telemetry.Merge(fields, map[string]any{"error": err}))
		metrics.IncContinuationFailed()
		return Result{Message: msg, Disposition: Retry, Err: err}
	case advancer == nil:
		err = errors.New("generation machine not configured")
		telemetry.Error("worker.continuation.failed", telemetry.Merge(fields, map[string]any{"error": err}))
		metrics.IncContinuationFailed()
		return Result{Message: msg, Disposition: Retry, Err: err}
	}

	out, err := advancer.Advance(ctx, msg.SubjectID)
	if err != nil {
		err = fmt.Errorf("advance %s: %w", msg.SubjectID, err)
		telemetry.Error("worker.continuation.failed", telemetry.Merge(fields, map[string]any{"error": err}))
		metrics.IncContinuationFailed()
		return Result{Message: msg, Disposition: Retry, Err: err}
	}

	done := telemetry.Merge(fields, map[string]any{
		"status": string(out.Status),
		"lag_ms": msg.Lag(time.Now()).Milliseconds(),
	})
	if out.Code != "" {
		done["code"] = string(out.Code)
	}
	telemetry.Info("worker.continuation.completed", done)
	return Result{Message: msg, Outcome: out, Disposition: Ack}
}
