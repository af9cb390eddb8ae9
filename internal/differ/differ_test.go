package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ympact/typesense-sync/internal/schema"
	"github.com/ympact/typesense-sync/internal/typesense"
)

type bookOpts struct {
	version    string
	facetTitle bool
	withYear   bool
}

func books(t *testing.T, o bookOpts) *schema.Descriptor {
	t.Helper()
	b := schema.New("books").Version(o.version)
	title := b.Title("")
	if o.facetTitle {
		title.Facet()
	}
	b.String("author")
	if o.withYear {
		b.Int32("year")
	}
	b.CreatedAt("")
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

func remoteOf(d *schema.Descriptor, name string) *typesense.Collection {
	return &typesense.Collection{CollectionSchema: d.Payload(name)}
}

func TestDecide_NoRemoteNeedsCreate(t *testing.T) {
	d := books(t, bookOpts{version: "v1"})
	assert.Equal(t, NeedsCreate, Decide(nil, d, true, Lexical{}))
	assert.Equal(t, NeedsCreate, Decide(nil, d, false, Lexical{}))
}

func TestDecide_VersionScenarios(t *testing.T) {
	cases := []struct {
		desired, remote string
		want            Decision
	}{
		{"2024-02", "2024-01", NeedsFullCutover},
		{"2024-01", "2024-01", NeedsVersionBump},
		{"2023-12", "2024-01", NeedsVersionBump},
		{"v2", "", NeedsFullCutover},
	}
	for _, tc := range cases {
		t.Run(tc.desired+"_vs_"+tc.remote, func(t *testing.T) {
			remote := remoteOf(books(t, bookOpts{version: tc.remote}), "books_x")
			desired := books(t, bookOpts{version: tc.desired, withYear: true})
			got := Decide(remote, desired, true, Lexical{})
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want != NeedsFullCutover, got.Skip())
		})
	}
}

func TestDecide_LexicalMisordersUnpaddedTags(t *testing.T) {
	remote := remoteOf(books(t, bookOpts{version: "9"}), "books_9")
	desired := books(t, bookOpts{version: "10"})

	assert.Equal(t, NeedsVersionBump, Decide(remote, desired, true, Lexical{}))
	assert.Equal(t, NeedsFullCutover, Decide(remote, desired, true, Semver{}))
}

func TestDecide_DualWriteWithoutVersionUsesStructure(t *testing.T) {
	remote := remoteOf(books(t, bookOpts{}), "books_1")
	assert.Equal(t, Unchanged, Decide(remote, books(t, bookOpts{}), true, Lexical{}))
	assert.Equal(t, NeedsFullCutover, Decide(remote, books(t, bookOpts{withYear: true}), true, Lexical{}))
}

func TestDecide_SimpleModeIgnoresVersion(t *testing.T) {
	remote := remoteOf(books(t, bookOpts{version: "v1"}), "books")
	assert.Equal(t, Unchanged, Decide(remote, books(t, bookOpts{version: "v9"}), false, Lexical{}))
	assert.Equal(t, NeedsPatch, Decide(remote, books(t, bookOpts{version: "v1", facetTitle: true}), false, Lexical{}))
}

func TestDiff_FacetOnlyChangeIsSingleAlter(t *testing.T) {
	remote := remoteOf(books(t, bookOpts{}), "books")
	desired := books(t, bookOpts{facetTitle: true})

	p := Diff(remote, desired)
	require.Len(t, p.Changes, 1)
	c := p.Changes[0]
	assert.Equal(t, Alter, c.Kind)
	assert.Equal(t, "title", c.Field)
	assert.Equal(t, []string{"facet"}, c.Keys)
	require.NotNil(t, c.Desired.Facet)
	assert.True(t, *c.Desired.Facet)
	assert.Empty(t, p.Immutable)

	payload := p.Payload()
	require.Len(t, payload.Fields, 2)
	assert.Equal(t, "title", payload.Fields[0].Name)
	require.NotNil(t, payload.Fields[0].Drop)
	assert.True(t, *payload.Fields[0].Drop)
	assert.Nil(t, payload.Fields[1].Drop)
}

func TestDiff_AddAndDrop(t *testing.T) {
	remote := remoteOf(books(t, bookOpts{withYear: true}), "books")
	b := schema.New("books")
	b.Title("")
	b.Float("rating")
	b.CreatedAt("")
	desired, err := b.Build()
	require.NoError(t, err)

	p := Diff(remote, desired)
	kinds := map[string]ChangeKind{}
	for _, c := range p.Changes {
		kinds[c.Field] = c.Kind
	}
	assert.Equal(t, map[string]ChangeKind{"rating": Add, "author": Drop, "year": Drop}, kinds)
	assert.Contains(t, p.String(), "add rating")
}

func TestDiff_RemoteDefaultsAreNormalised(t *testing.T) {
	remote := &typesense.Collection{CollectionSchema: typesense.CollectionSchema{
		Name: "books",
		Fields: []typesense.Field{
			{Name: "title", Type: "string"},
			{Name: "created_at", Type: "int32"},
			{Name: "author", Type: "object"},
			{Name: "author.name", Type: "string"},
		},
		EnableNestedFields: boolp(true),
	}}
	b := schema.New("books")
	b.String("title")
	b.Object("author")
	b.CreatedAt("")
	desired, err := b.Build()
	require.NoError(t, err)

	assert.True(t, Diff(remote, desired).Empty(), Diff(remote, desired).String())
}

func TestDiff_CollectionSettingsAreImmutable(t *testing.T) {
	remote := remoteOf(books(t, bookOpts{}), "books")
	b := schema.New("books").TokenSeparators("-").Metadata("owner", "x")
	b.Title("")
	b.String("author")
	b.CreatedAt("")
	desired, err := b.Build()
	require.NoError(t, err)

	p := Diff(remote, desired)
	assert.Empty(t, p.Changes)
	assert.Equal(t, []string{"token_separators"}, p.Immutable)
	assert.False(t, p.Empty())
}

func TestDiff_MetadataIsPatched(t *testing.T) {
	remote := remoteOf(books(t, bookOpts{}), "books")
	remote.Metadata = map[string]any{"version": "v3"}
	b := schema.New("books").Metadata("owner", "team-a")
	b.Title("")
	b.String("author")
	b.CreatedAt("")
	desired, err := b.Build()
	require.NoError(t, err)

	p := Diff(remote, desired)
	assert.Empty(t, p.Changes)
	assert.Empty(t, p.Immutable)
	assert.Equal(t, map[string]any{"owner": "team-a", "version": "v3"}, p.Metadata)
	assert.Equal(t, "alter metadata", p.String())
	assert.Equal(t, p.Metadata, p.Payload().Metadata)
	assert.Equal(t, NeedsPatch, Decide(remote, desired, false, nil))

	remote.Metadata = map[string]any{"owner": "team-a", "version": "v4"}
	assert.True(t, Diff(remote, desired).Empty(), "the version tag alone is not a change")
}

func TestSemver_Newer(t *testing.T) {
	s := Semver{}
	assert.True(t, s.Newer("1.10.0", "1.9.0"))
	assert.False(t, s.Newer("v1.2", "1.2.0"))
	assert.True(t, s.Newer("v2", "legacy"))
	assert.True(t, s.Newer("v1", ""))
}

func TestComparatorFor(t *testing.T) {
	c, err := ComparatorFor("semver")
	require.NoError(t, err)
	assert.IsType(t, Semver{}, c)
	_, err = ComparatorFor("calver")
	assert.Error(t, err)
}

func boolp(v bool) *bool { return &v }
