package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ympact/typesense-sync/internal/config"
	"github.com/ympact/typesense-sync/internal/factory"
	"github.com/ympact/typesense-sync/internal/kv"
	"github.com/ympact/typesense-sync/internal/migrate"
	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/searchable"
	"github.com/ympact/typesense-sync/internal/store"
	"github.com/ympact/typesense-sync/internal/typesense"
	"github.com/ympact/typesense-sync/internal/typesense/typesensetest"
)

const manifest = `
models:
  - name: books
    int_key: true
    version: v1
    timestamps: true
    fields:
      - {name: title, type: string}
`

func newTestApp(t *testing.T) (*factory.App, *typesensetest.Backend) {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE books (id INTEGER PRIMARY KEY, title TEXT NOT NULL, created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO books VALUES (1, 'Dune', 1, 1), (2, 'Emma', 2, 2), (3, 'Ulysses', 3, 3)`)
	require.NoError(t, err)

	m, err := searchable.ParseManifest(strings.NewReader(manifest))
	require.NoError(t, err)
	reg := searchable.NewRegistry()
	require.NoError(t, m.Register(db, reg))

	be := typesensetest.New()
	app, err := factory.Assemble(config.NewForTesting(), db, be, kv.NewMemoryStore(nil), reg, zerolog.Nop())
	require.NoError(t, err)
	return app, be
}

func TestUpdateSchemasThenStatus(t *testing.T) {
	ctx := context.Background()
	app, be := newTestApp(t)

	var out bytes.Buffer
	require.NoError(t, runUpdateSchemas(ctx, app, nil, false, &out))
	assert.Contains(t, out.String(), "books_v1")
	assert.Contains(t, out.String(), "ok")
	assert.Len(t, be.Documents("books"), 3)

	out.Reset()
	require.NoError(t, runStatus(ctx, app, []string{"books"}, &out))
	assert.Contains(t, out.String(), string(migrate.StatusBase))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"MODEL", "STATUS", "COLLECTION", "VERSION", "DESIRED", "DOCUMENTS", "ROWS", "DRIFT"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"books", "base", "books_v1", "v1", "v1", "3", "3", "-"}, strings.Fields(lines[1]))

	list, err := statusLister(app)(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "books_v1", list[0].Collection)
}

func TestUnknownModel(t *testing.T) {
	app, _ := newTestApp(t)
	err := runUpdateSchemas(context.Background(), app, []string{"films"}, false, &bytes.Buffer{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestImportAndOrphans(t *testing.T) {
	ctx := context.Background()
	app, be := newTestApp(t)
	require.NoError(t, runUpdateSchemas(ctx, app, nil, false, &bytes.Buffer{}))

	_, err := app.DB.Exec(`DELETE FROM books WHERE id = 2`)
	require.NoError(t, err)
	_, err = app.DB.Exec(`INSERT INTO books VALUES (4, 'Walden', 4, 4)`)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runImport(ctx, app, nil, 2, &out))
	assert.Contains(t, out.String(), "books: 3 rows imported")
	assert.Len(t, be.Documents("books"), 4)

	out.Reset()
	require.NoError(t, runFindOrphans(ctx, app, nil, &out))
	assert.Contains(t, out.String(), "books: 1 orphans")

	out.Reset()
	require.NoError(t, runRemoveOrphans(ctx, app, nil, &out))
	assert.Contains(t, out.String(), "books: 1 found, 1 removed, ok")
	assert.Len(t, be.Documents("books"), 3)
}

func TestCleanupLegacy(t *testing.T) {
	ctx := context.Background()
	app, be := newTestApp(t)
	require.NoError(t, runUpdateSchemas(ctx, app, nil, false, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, runCleanupLegacy(ctx, app, nil, &out))
	assert.Contains(t, out.String(), "nothing to clean up")

	be.Seed(typesense.CollectionSchema{Name: "books"})
	out.Reset()
	require.NoError(t, runCleanupLegacy(ctx, app, nil, &out))
	assert.Contains(t, out.String(), "legacy collection deleted")
	assert.False(t, be.HasCollection("books"))
	assert.True(t, be.HasCollection("books_v1"))
}
