package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/scrapeflow/pkg/api"
)

func TestOpen_MemoryAndNone(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, BackendMemory, "")
	require.NoError(t, err)
	require.IsType(t, &InMemoryEventStore{}, store)
	require.NoError(t, closeFn())

	store, closeFn, err = Open(ctx, BackendNone, "")
	require.NoError(t, err)
	require.Nil(t, store)
	require.NoError(t, closeFn())
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, closeFn, err := Open(ctx, BackendSQLite, path)
	require.NoError(t, err)
	require.NoError(t, store.AppendEvent(ctx, api.Event{RunID: "r", Seq: 1, Type: api.EventRunSucceeded}))
	require.NoError(t, closeFn())

	// Reopening sees the persisted history.
	store, closeFn, err = Open(ctx, BackendSQLite, path)
	require.NoError(t, err)
	defer closeFn()
	evs, err := store.ListEvents(ctx, "r")
	require.NoError(t, err)
	require.Len(t, evs, 1)
}

func TestOpen_Unsupported(t *testing.T) {
	_, closeFn, err := Open(context.Background(), "cassandra", "")
	require.ErrorIs(t, err, ErrUnsupportedBackend)
	require.NotNil(t, closeFn)
}

func TestCodec_NilAndJSON(t *testing.T) {
	b, err := EncodeValue(nil)
	require.NoError(t, err)
	require.Nil(t, b)

	v, err := DecodeValue(nil)
	require.NoError(t, err)
	require.Nil(t, v)

	b, err = EncodeValue(map[string]any{"n": 1})
	require.NoError(t, err)
	v, err = DecodeValue(b)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"n": float64(1)}, v)

	_, err = EncodeValue(make(chan int))
	require.Error(t, err)
}
