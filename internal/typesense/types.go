package typesense

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/ympact/typesense-sync/internal/model"
)

// Field mirrors a Typesense collection field. Pointer members are omitted
// from payloads when nil so partial updates only carry what changed.
type Field struct {
	Name       string      `json:"name"`
	Type       string      `json:"type,omitempty"`
	Facet      *bool       `json:"facet,omitempty"`
	Optional   *bool       `json:"optional,omitempty"`
	Index      *bool       `json:"index,omitempty"`
	Store      *bool       `json:"store,omitempty"`
	Sort       *bool       `json:"sort,omitempty"`
	Infix      *bool       `json:"infix,omitempty"`
	Locale     *string     `json:"locale,omitempty"`
	NumDim     *int        `json:"num_dim,omitempty"`
	VecDist    *string     `json:"vec_dist,omitempty"`
	Reference  *string     `json:"reference,omitempty"`
	RangeIndex *bool       `json:"range_index,omitempty"`
	Stem       *bool       `json:"stem,omitempty"`
	Embed      *FieldEmbed `json:"embed,omitempty"`
	Drop       *bool       `json:"drop,omitempty"`
}

// FieldEmbed configures Typesense auto-embedding for a vector field.
type FieldEmbed struct {
	From        []string       `json:"from"`
	ModelConfig map[string]any `json:"model_config"`
}

// CollectionSchema is the create payload for POST /collections.
type CollectionSchema struct {
	Name                string         `json:"name"`
	Fields              []Field        `json:"fields"`
	DefaultSortingField string         `json:"default_sorting_field,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	TokenSeparators     []string       `json:"token_separators,omitempty"`
	SymbolsToIndex      []string       `json:"symbols_to_index,omitempty"`
	EnableNestedFields  *bool          `json:"enable_nested_fields,omitempty"`
}

// Collection is a retrieved collection: its schema plus server bookkeeping.
type Collection struct {
	CollectionSchema
	NumDocuments int64 `json:"num_documents"`
	CreatedAt    int64 `json:"created_at"`
}

// Version returns metadata.version or "" when the collection carries none.
func (c *Collection) Version() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	switch v := c.Metadata["version"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// FieldByName returns the remote field with the given name.
func (c *Collection) FieldByName(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// CollectionUpdate is the PATCH /collections/{name} payload.
// Fields is left out when empty. A non-nil Metadata replaces the remote
// metadata, so an empty map clears it.
type CollectionUpdate struct {
	Fields   []Field
	Metadata map[string]any
}

func (u CollectionUpdate) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if len(u.Fields) > 0 {
		body["fields"] = u.Fields
	}
	if u.Metadata != nil {
		body["metadata"] = u.Metadata
	}
	return json.Marshal(body)
}

// Alias binds a stable name to a physical collection.
type Alias struct {
	Name           string `json:"name"`
	CollectionName string `json:"collection_name"`
}

// ImportAction is the import mode passed as ?action=.
type ImportAction string

const ActionUpsert ImportAction = "upsert"

// ImportResult is one line of the import response.
type ImportResult struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Document string `json:"document,omitempty"`
	ID       string `json:"id,omitempty"`
}

// SearchParams is the subset of search parameters the sync tooling issues.
type SearchParams struct {
	Q             string
	QueryBy       string
	FilterBy      string
	SortBy        string
	IncludeFields string
	GroupBy       string
	Page          int
	PerPage       int
}

// Hit is a single search hit.
type Hit struct {
	Document model.Document `json:"document"`
}

// GroupedHit is a group of hits when group_by is set.
type GroupedHit struct {
	GroupKey []any `json:"group_key"`
	Hits     []Hit `json:"hits"`
	Found    int   `json:"found,omitempty"`
}

// SearchResult is the search response envelope.
type SearchResult struct {
	Found       int              `json:"found"`
	OutOf       int              `json:"out_of"`
	Page        int              `json:"page"`
	Hits        []Hit            `json:"hits"`
	GroupedHits []GroupedHit     `json:"grouped_hits,omitempty"`
	FacetCounts []map[string]any `json:"facet_counts,omitempty"`
}

// DocumentIDs returns hit identifiers, taking the first hit of each group
// when the result is grouped.
func (r *SearchResult) DocumentIDs() []string {
	if r == nil {
		return nil
	}
	if len(r.GroupedHits) > 0 {
		ids := make([]string, 0, len(r.GroupedHits))
		for _, g := range r.GroupedHits {
			if len(g.Hits) > 0 {
				ids = append(ids, g.Hits[0].Document.ID())
			}
		}
		return ids
	}
	ids := make([]string, 0, len(r.Hits))
	for _, h := range r.Hits {
		ids = append(ids, h.Document.ID())
	}
	return ids
}

// Backend is the search engine surface the sync core depends on.
type Backend interface {
	CreateCollection(ctx context.Context, schema CollectionSchema) (*Collection, error)
	RetrieveCollection(ctx context.Context, name string) (*Collection, error)
	ListCollections(ctx context.Context) ([]*Collection, error)
	UpdateCollection(ctx context.Context, name string, update CollectionUpdate) error
	DeleteCollection(ctx context.Context, name string) error

	UpsertAlias(ctx context.Context, name, collection string) (*Alias, error)
	RetrieveAlias(ctx context.Context, name string) (*Alias, error)
	ListAliases(ctx context.Context) ([]*Alias, error)
	DeleteAlias(ctx context.Context, name string) error

	ImportDocuments(ctx context.Context, collection string, docs []model.Document, action ImportAction) ([]ImportResult, error)
	SearchDocuments(ctx context.Context, collection string, params SearchParams) (*SearchResult, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	DeleteDocuments(ctx context.Context, collection, filterBy string) (int, error)

	UpsertSynonym(ctx context.Context, collection, id string, synonyms []string) error

	Health(ctx context.Context) error
}
