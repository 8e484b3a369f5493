package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "sg"), mr
}

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "state", "guard.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "user")
	assert.True(t, errors.Is(err, ErrNotFound), "missing key should be ErrNotFound, got %v", err)

	require.NoError(t, store.Set(ctx, "user", `{"email":"a@b.c"}`))
	require.NoError(t, store.Set(ctx, "token", "abc"))

	got, err := store.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"email":"a@b.c"}`, got)

	require.NoError(t, store.Set(ctx, "token", "def"))
	got, err = store.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "def", got)

	require.NoError(t, store.Delete(ctx, "user", "token", "never-set"))
	_, err = store.Get(ctx, "user")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "token")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisTestStore(t)
	exerciseStore(t, store)
}

func TestRedisStorePrefixesKeys(t *testing.T) {
	store, mr := newRedisTestStore(t)
	require.NoError(t, store.Set(context.Background(), "lockout_a@b.c", "{}"))

	assert.True(t, mr.Exists("sg:lockout_a@b.c"))
	assert.False(t, mr.Exists("lockout_a@b.c"))
	assert.Equal(t, 0, int(mr.TTL("sg:lockout_a@b.c")))
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisTestStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "user")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, store.Set(context.Background(), "user", "x"), ErrUnavailable)
	assert.ErrorIs(t, store.Delete(context.Background(), "user"), ErrUnavailable)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	exerciseStore(t, newSQLiteTestStore(t))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.db")
	ctx := context.Background()

	first, err := OpenSQLite(SQLiteConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "token", "persisted"))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(SQLiteConfig{})
	assert.Error(t, err)
}
