package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/colorfulnotion/fraudproof/assignment"
	"github.com/colorfulnotion/fraudproof/testutil"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreMemory(t *testing.T) {
	b, err := NewBlobStore("")
	require.NoError(t, err)
	defer b.Close()

	_, ok, err := b.Get([]byte("snapshot/mainnet/a"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Put([]byte("snapshot/mainnet/a"), []byte{1, 2}))
	require.NoError(t, b.Put([]byte("snapshot/mainnet/b"), []byte{3}))
	require.NoError(t, b.Put([]byte("snapshot/tethys/a"), []byte{4}))

	got, ok, err := b.Get([]byte("snapshot/mainnet/a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2}, got)

	keys, err := b.Keys([]byte("snapshot/mainnet/"))
	require.NoError(t, err)
	require.Equal(t, []string{"snapshot/mainnet/a", "snapshot/mainnet/b"}, keys)
}

func TestBlobStoreReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBlobStore(dir)
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("k"), []byte("v")))
	require.NoError(t, b.Close())

	b, err = NewBlobStore(dir)
	require.NoError(t, err)
	defer b.Close()
	got, ok, err := b.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)
}

func TestBlobStoreBacksLoader(t *testing.T) {
	snap := testutil.Snapshot(testutil.NewIdentities(t, 3))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(assignment.Compress(assignment.Encode(snap)))
	}))
	defer srv.Close()

	b, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	cfg := assignment.DefaultLoaderConfig()
	cfg.URLTemplate = srv.URL + "/{network}/{id}.fb.1.gz"
	l := assignment.NewLoader(cfg).WithCache(b)
	for i := 0; i < 2; i++ {
		got, err := l.Load(context.Background(), "a-1")
		require.NoError(t, err)
		require.Equal(t, snap, got)
	}
	require.Equal(t, int32(1), hits.Load())

	keys, err := b.Keys([]byte(assignment.CacheKeyPrefix))
	require.NoError(t, err)
	require.Equal(t, []string{"snapshot/mainnet/a-1"}, keys)
}
