package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	content := []byte("volume dataset payload")
	require.NoError(t, store.Put(ctx, "datasets/brain.lvb", content))

	blob, err := store.Open(ctx, "datasets/brain.lvb")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), blob.Size())

	buf := make([]byte, 7)
	n, err := blob.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, "dataset", string(buf[:n]))

	if m, ok := blob.(Mappable); ok {
		data, err := m.Bytes()
		require.NoError(t, err)
		assert.Equal(t, content, data)
	}
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "datasets/")
	require.NoError(t, err)
	assert.Equal(t, []string{"datasets/brain.lvb"}, names)

	require.NoError(t, store.Delete(ctx, "datasets/brain.lvb"))
	_, err = store.Open(ctx, "datasets/brain.lvb")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte{1, 2, 3}
	require.NoError(t, store.Put(ctx, "b", data))

	blob, err := store.Open(ctx, "b")
	require.NoError(t, err)
	defer blob.Close()

	// Overwriting after Open must not mutate the open blob.
	require.NoError(t, store.Put(ctx, "b", []byte{9, 9, 9}))

	buf := make([]byte, 3)
	_, err = blob.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf)
}
