package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckKey(t *testing.T) {
	for _, key := range []string{"documents/ab/final.json", "a", "a.b/c-d"} {
		assert.NoError(t, CheckKey(key), key)
	}
	for _, key := range []string{"", "/etc/passwd", "a//b", "a/../b", "..", "./a", "a/"} {
		assert.ErrorIs(t, CheckKey(key), ErrInvalidKey, key)
	}
}
