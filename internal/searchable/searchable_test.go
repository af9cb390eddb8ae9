package searchable

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/schema"
	"github.com/ympact/typesense-sync/internal/store"
)

const manifestYAML = `
default_locale: de
models:
  - name: authors
    int_key: true
    timestamps: true
    fields:
      - {name: name, type: string, sort: true}
  - name: books
    table: book_rows
    int_key: true
    version: "2024-02"
    timestamps: true
    default_sort: created_at
    skip_when: {draft: "1"}
    metadata: {owner: catalog}
    fields:
      - {name: title, type: string, sort: true, stem: true}
      - {name: genre, type: string, facet: true, locale: en}
      - {name: author_id, type: string, reference: authors.id}
      - {name: price, type: float, range_index: true}
      - {name: vec, type: "float[]", num_dim: 4, vec_dist: ip}
`

type emptySource struct{}

func (emptySource) Stream(context.Context, int, func([]model.Document) error) error { return nil }
func (emptySource) Existing(context.Context, []string) ([]string, error)            { return nil, nil }

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestManifest_Register(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(manifestYAML))
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, m.Register(openDB(t), reg))

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "authors", all[0].SearchableAs())
	assert.Equal(t, "books", all[1].SearchableAs())

	books, ok := reg.Get("books")
	require.True(t, ok)
	d, err := books.Schema()
	require.NoError(t, err)
	assert.Equal(t, "2024-02", d.Version())
	assert.Equal(t, "created_at", d.DefaultSortField())
	assert.Equal(t, map[string]any{"owner": "catalog", "version": "2024-02"}, d.Metadata())

	title, ok := d.Field("title")
	require.True(t, ok)
	assert.True(t, title.Sort)
	assert.True(t, title.Stem)
	assert.Equal(t, "de", title.Locale)

	genre, _ := d.Field("genre")
	assert.Equal(t, "en", genre.Locale)
	assert.True(t, genre.Facet)

	ref, _ := d.Field("author_id")
	assert.Equal(t, "authors.id", ref.Reference)

	vec, _ := d.Field("vec")
	assert.Equal(t, 4, vec.NumDim)
	assert.Equal(t, "ip", vec.VecDist)

	_, ok = d.Field("updated_at")
	assert.True(t, ok)
}

func TestManifest_SkipWhen(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(manifestYAML))
	require.NoError(t, err)
	reg := NewRegistry()
	require.NoError(t, m.Register(openDB(t), reg))

	books, _ := reg.Get("books")
	assert.True(t, books.ShouldIndex(model.Document{"id": "1", "draft": int64(0)}))
	assert.False(t, books.ShouldIndex(model.Document{"id": "2", "draft": int64(1)}))
	assert.True(t, books.ShouldIndex(model.Document{"id": "3"}))

	authors, _ := reg.Get("authors")
	assert.True(t, authors.ShouldIndex(model.Document{"id": "1", "draft": int64(1)}))
}

func TestManifest_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
models:
  - name: books
    colour: red
`,
		"missing created_at": `
models:
  - name: books
    fields:
      - {name: title, type: string}
`,
		"reference to unknown model": `
models:
  - name: books
    timestamps: true
    fields:
      - {name: author_id, type: string, reference: writers.id}
`,
		"unknown type": `
models:
  - name: books
    timestamps: true
    fields:
      - {name: title, type: text}
`,
		"bad table": `
models:
  - name: books
    table: "books; drop table x"
    timestamps: true
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := ParseManifest(strings.NewReader(doc))
			if err == nil {
				reg := NewRegistry()
				err = m.Register(openDB(t), reg)
				assert.Empty(t, reg.All(), "nothing is registered when an entry is invalid")
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrConfiguration)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o600))

	reg := NewRegistry()
	require.NoError(t, LoadManifest(path, openDB(t), reg))
	assert.Len(t, reg.All(), 2)

	err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"), openDB(t), NewRegistry())
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	def := &Definition{
		Alias:  "books",
		Source: emptySource{},
		Describe: func() (*schema.Descriptor, error) {
			return schema.New("books").Timestamps().Build()
		},
	}
	require.NoError(t, reg.Register(def))
	assert.ErrorIs(t, reg.Register(def), model.ErrConfiguration)
	assert.ErrorIs(t, reg.Register(&Definition{Alias: "orphan"}), model.ErrConfiguration)

	sel, err := reg.Select()
	require.NoError(t, err)
	assert.Len(t, sel, 1)

	_, err = reg.Select("books", "authors")
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.True(t, def.ShouldIndex(model.Document{}))
	_, err = (&Definition{Alias: "x"}).Schema()
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
