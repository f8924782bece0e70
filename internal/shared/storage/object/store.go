package object

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no object exists under a key.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that are empty, absolute or contain dot segments.
	ErrInvalidKey = errors.New("invalid object key")
)

// Blobs stores small payloads under slash-separated keys. Writes replace any
// existing object and removing a missing key succeeds.
type Blobs interface {
	Write(ctx context.Context, key string, body []byte, contentType string) error
	Read(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

// CheckKey validates a key shared by every backend.
func CheckKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "", ".", "..":
			return ErrInvalidKey
		}
	}
	return nil
}
