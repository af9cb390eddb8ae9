package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ympact/typesense-sync/internal/model"
)

type authors struct{}

func (authors) SearchableAs() string { return "authors" }

func TestBuild_RequiresCreatedAt(t *testing.T) {
	b := New("books")
	b.Title("")

	d, err := b.Build()
	require.Error(t, err)
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, model.ErrConfiguration))
	assert.Contains(t, err.Error(), "created_at")
}

func TestBuild_CustomCreatedAtName(t *testing.T) {
	b := New("books")
	b.CreatedAt("published_at")

	d, err := b.Build()
	require.NoError(t, err)
	f, ok := d.Field("published_at")
	require.True(t, ok)
	assert.Equal(t, TypeInt32, f.Type)
	assert.True(t, f.Sort)
}

func TestBuild_HandlesDoNotLeak(t *testing.T) {
	b := New("books").Version("v2")
	title := b.Title("")
	year := b.Int32("year")
	title.Facet()
	year.RangeIndex()
	b.Timestamps()

	d, err := b.Build()
	require.NoError(t, err)

	ft, _ := d.Field("title")
	fy, _ := d.Field("year")
	assert.True(t, ft.Facet)
	assert.False(t, ft.RangeIndex)
	assert.False(t, fy.Facet)
	assert.True(t, fy.RangeIndex)
	assert.Equal(t, "en", ft.Locale)
	assert.True(t, ft.Stem)
}

func TestBuild_Defaults(t *testing.T) {
	b := New("books")
	b.String("author")
	b.Float("price")
	b.CreatedAt("")

	d, err := b.Build()
	require.NoError(t, err)

	author, _ := d.Field("author")
	assert.True(t, author.Index)
	assert.True(t, author.Store)
	assert.False(t, author.Sort)
	assert.False(t, author.Facet)
	assert.Equal(t, "en", author.Locale)

	price, _ := d.Field("price")
	assert.True(t, price.Sort, "numeric fields sort by default")
}

func TestBuild_InvalidModifiers(t *testing.T) {
	cases := map[string]func(b *Builder){
		"locale on int":          func(b *Builder) { b.Int32("n").Locale("en") },
		"bad locale":             func(b *Builder) { b.String("s").Locale("eng") },
		"distance on string":     func(b *Builder) { b.String("s").Distance("cosine") },
		"unknown distance":       func(b *Builder) { b.Vector("v", 3).Distance("l2") },
		"dims on float":          func(b *Builder) { b.Float("f").Dimensions(3) },
		"range on string":        func(b *Builder) { b.String("s").RangeIndex() },
		"range on int array":     func(b *Builder) { b.Field("a", TypeInt32Array).RangeIndex() },
		"reference unsearchable": func(b *Builder) { b.String("s").Reference(nil, "id") },
		"embed missing source":   func(b *Builder) { b.Field("e", TypeFloatArray).AutoEmbed("m", "nope") },
		"duplicate name":         func(b *Builder) { b.String("s"); b.Int32("s") },
		"unknown type":           func(b *Builder) { b.Field("x", FieldType("decimal")) },
		"unsortable default":     func(b *Builder) { b.String("s").DefaultSort() },
		"missing default":        func(b *Builder) { b.DefaultSortField("nope") },
		"reserved metadata":      func(b *Builder) { b.Metadata("version", "x") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := New("books")
			b.CreatedAt("")
			mutate(b)
			_, err := b.Build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrConfiguration))
		})
	}
}

func TestBuild_ReferenceAndEmbed(t *testing.T) {
	b := New("books")
	b.Tags(authors{}, "writers")
	b.String("summary")
	b.Vector("summary_vec", 384).AutoEmbed("ts/all-MiniLM-L12-v2", "summary")
	b.CreatedAt("")

	d, err := b.Build()
	require.NoError(t, err)

	w, _ := d.Field("writers")
	assert.Equal(t, "authors.id", w.Reference)
	assert.Equal(t, TypeStringArray, w.Type)

	v, _ := d.Field("summary_vec")
	require.NotNil(t, v.Embed)
	assert.Equal(t, []string{"summary"}, v.Embed.From)
	assert.Equal(t, "ts/all-MiniLM-L12-v2", v.Embed.ModelConfig["model_name"])
}

func TestBuild_ImageAddsEmbedding(t *testing.T) {
	b := New("photos")
	b.Image("picture")
	b.CreatedAt("")

	d, err := b.Build()
	require.NoError(t, err)

	pic, _ := d.Field("picture")
	assert.False(t, pic.Store)
	emb, ok := d.Field("embedding")
	require.True(t, ok)
	assert.Equal(t, []string{"picture"}, emb.Embed.From)
}

func TestDescriptor_Payload(t *testing.T) {
	b := New("books").Version("v2").Metadata("owner", "catalog").TokenSeparators("-")
	b.Title("")
	b.Int64("sales").DefaultSort()
	b.CreatedAt("")

	d, err := b.Build()
	require.NoError(t, err)

	p := d.Payload("books_v2")
	assert.Equal(t, "books_v2", p.Name)
	assert.Equal(t, "sales", p.DefaultSortingField)
	assert.Equal(t, map[string]any{"version": "v2", "owner": "catalog"}, p.Metadata)
	assert.Equal(t, []string{"-"}, p.TokenSeparators)
	assert.Nil(t, p.SymbolsToIndex)
	require.NotNil(t, p.EnableNestedFields)
	assert.True(t, *p.EnableNestedFields)
	require.Len(t, p.Fields, 3)

	title := p.Fields[0]
	require.NotNil(t, title.Locale)
	assert.Equal(t, "en", *title.Locale)
	require.NotNil(t, title.Facet)
	assert.False(t, *title.Facet)
	assert.Nil(t, p.Fields[1].Locale)
}

func TestBuild_DefaultLocale(t *testing.T) {
	b := New("livres").DefaultLocale("fr")
	b.String("titre")
	b.Int32("pages")
	b.CreatedAt("")

	d, err := b.Build()
	require.NoError(t, err)
	f, _ := d.Field("titre")
	assert.Equal(t, "fr", f.Locale)
	p, _ := d.Field("pages")
	assert.Empty(t, p.Locale)
}

func TestDescriptor_Immutable(t *testing.T) {
	b := New("books")
	b.String("author")
	b.CreatedAt("")
	d, err := b.Build()
	require.NoError(t, err)

	fields := d.Fields()
	fields[0].Name = "changed"
	b.String("late")

	assert.Equal(t, "author", d.Fields()[0].Name)
	assert.Len(t, d.Fields(), 2)
	assert.Equal(t, []string{"author"}, d.StringFields())
}

func TestFieldType_Helpers(t *testing.T) {
	assert.Equal(t, TypeInt32Array, TypeInt32.AsArray())
	assert.Equal(t, TypeImage, TypeImage.AsArray())
	assert.True(t, TypeStringStar.IsString())
	assert.False(t, TypeInt32Array.IsNumeric())
	assert.True(t, TypeObjectArray.IsObject())
	_, ok := ParseFieldType("geopoint[]")
	assert.True(t, ok)
	_, ok = ParseFieldType("decimal")
	assert.False(t, ok)
}
