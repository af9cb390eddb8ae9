package dualwrite

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ympact/typesense-sync/internal/kv"
)

func TestRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore(nil)
	r := NewRegistry(store, 0, zerolog.Nop())

	_, ok, err := r.Get(ctx, "books")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Enable(ctx, "books", "books_v1", "books_v2"))
	p, ok, err := r.Get(ctx, "books")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Pair{Old: "books_v1", New: "books_v2"}, p)
	assert.Equal(t, []string{"books_v1", "books_v2"}, p.Targets())

	raw, _, err := store.Get(ctx, "typesense_updating.books")
	require.NoError(t, err)
	assert.Equal(t, "books_v1,books_v2", raw)

	require.NoError(t, r.Disable(ctx, "books"))
	_, ok, err = r.Get(ctx, "books")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	store := kv.NewMemoryStore(func() time.Time { return now })
	r := NewRegistry(store, 0, zerolog.Nop())

	require.NoError(t, r.Enable(ctx, "books", "books_v1", "books_v2"))

	now = now.Add(DefaultTTL - time.Second)
	_, ok, err := r.Get(ctx, "books")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, err = r.Get(ctx, "books")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_KeyedPerAlias(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(kv.NewMemoryStore(nil), time.Minute, zerolog.Nop())

	require.NoError(t, r.Enable(ctx, "books", "books_v1", "books_v2"))
	require.NoError(t, r.Enable(ctx, "authors", "", "authors_v1"))

	a, ok, err := r.Get(ctx, "authors")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"authors_v1"}, a.Targets())

	require.NoError(t, r.Disable(ctx, "authors"))
	_, ok, err = r.Get(ctx, "books")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_MalformedRecordIgnored(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore(nil)
	r := NewRegistry(store, time.Minute, zerolog.Nop())

	require.NoError(t, store.Put(ctx, Key("books"), "garbage", time.Minute))
	_, ok, err := r.Get(ctx, "books")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, r.Enable(ctx, "books", "books_v1", ""))
}
