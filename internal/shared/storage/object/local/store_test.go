package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen-backend/internal/shared/storage/object"
)

const key = "documents/ab12/final.json"

func TestWriteReplacesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, key, []byte(`{"v":1}`), "application/json"))
	require.NoError(t, store.Write(ctx, key, []byte(`{"v":2}`), "application/json"))

	body, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(body))

	entries, err := os.ReadDir(filepath.Join(dir, "documents", "ab12"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, key, []byte("x"), "text/plain"))

	require.NoError(t, store.Remove(ctx, key))
	require.NoError(t, store.Remove(ctx, key))

	_, err := store.Read(ctx, key)
	assert.ErrorIs(t, err, object.ErrNotFound)
}

func TestRejectsKeysOutsideRoot(t *testing.T) {
	store := New(t.TempDir())
	for _, bad := range []string{"../escape", "/etc/passwd", "", "."} {
		assert.ErrorIs(t, store.Write(context.Background(), bad, nil, ""), object.ErrInvalidKey, bad)
	}
}

func TestCanceledContext(t *testing.T) {
	store := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Read(ctx, key)
	assert.ErrorIs(t, err, context.Canceled)
}
