package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns a filesystem-safe, stable identifier for an opaque id.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ETag returns a strong entity tag for content, quoted for the header.
func ETag(content string) string {
	return `"` + HashKey(content)[:32] + `"`
}
