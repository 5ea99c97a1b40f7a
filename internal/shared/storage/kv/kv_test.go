package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenFileStore(dir)
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "voter_app_users")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "voter_app_users", []byte(`[{"username":"a"}]`)))
	require.NoError(t, store.Put(ctx, "voter_app_users", []byte(`[]`)))

	reopened, err := OpenFileStore(dir)
	require.NoError(t, err)
	got, ok, err := reopened.Get(ctx, "voter_app_users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "voter_app_users.json", entries[0].Name())
}

func TestStoresRejectPathLikeKeys(t *testing.T) {
	ctx := context.Background()
	fileStore, err := OpenFileStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	for _, store := range []Store{fileStore, NewMemoryStore()} {
		for _, key := range []string{"", "../etc", "a/b", ".hidden"} {
			err := store.Put(ctx, key, []byte("x"))
			assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
		}
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	val := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", val))
	val[0] = 'z'

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(got))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewMemoryStore().Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreserveKeepsCopyUnderDatedKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.UnixMilli(1767225600000)

	backup, err := Preserve(ctx, store, "voter_app_files", []byte("{broken"), at)
	require.NoError(t, err)
	assert.Equal(t, "voter_app_files.corrupt-1767225600000", backup)

	got, ok, err := store.Get(ctx, backup)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "{broken", string(got))
}
