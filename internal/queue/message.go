package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CurrentVersion is the message schema version written by NewContinuation.
const CurrentVersion = 1

// ErrUnsupportedVersion means the message was written by a newer producer.
var ErrUnsupportedVersion = errors.New("unsupported message version")

// Message is a deferred continuation for one subject.
type Message struct {
	SubjectID  string `json:"subjectId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	// DueAt is when the producer expected the continuation to run.
	DueAt   string `json:"dueAt,omitempty"`
	Version int    `json:"version"`
}

// NewContinuation builds a continuation message due delay after now.
func NewContinuation(subjectID, requestID string, now time.Time, delay time.Duration) Message {
	if delay < 0 {
		delay = 0
	}
	return Message{
		SubjectID:  subjectID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		DueAt:      now.UTC().Add(delay).Format(time.RFC3339),
		Version:    CurrentVersion,
	}
}

// Lag reports how far past DueAt now is. Messages without a parseable DueAt report zero.
func (m Message) Lag(now time.Time) time.Duration {
	due, err := time.Parse(time.RFC3339, m.DueAt)
	if err != nil {
		return 0
	}
	if lag := now.Sub(due); lag > 0 {
		return lag
	}
	return 0
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message. A missing version is read as version 1.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	msg.SubjectID = strings.TrimSpace(msg.SubjectID)
	if msg.Version == 0 {
		msg.Version = CurrentVersion
	}
	if msg.Version > CurrentVersion {
		return msg, fmt.Errorf("%w: %d", ErrUnsupportedVersion, msg.Version)
	}
	return msg, nil
}
