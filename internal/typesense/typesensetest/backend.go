// Package typesensetest provides an in-memory typesense.Backend for tests.
package typesensetest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/typesense"
)

// Operation names used for call counting and failure injection.
const (
	OpCreateCollection   = "create_collection"
	OpRetrieveCollection = "retrieve_collection"
	OpListCollections    = "list_collections"
	OpUpdateCollection   = "update_collection"
	OpDeleteCollection   = "delete_collection"
	OpUpsertAlias        = "upsert_alias"
	OpRetrieveAlias      = "retrieve_alias"
	OpListAliases        = "list_aliases"
	OpDeleteAlias        = "delete_alias"
	OpImport             = "import"
	OpSearch             = "search"
	OpDeleteDocument     = "delete_document"
	OpDeleteDocuments    = "delete_documents"
	OpUpsertSynonym      = "upsert_synonym"
)

var mutatingOps = map[string]bool{
	OpCreateCollection: true,
	OpUpdateCollection: true,
	OpDeleteCollection: true,
	OpUpsertAlias:      true,
	OpDeleteAlias:      true,
}

type collection struct {
	meta  typesense.Collection
	docs  map[string]model.Document
	order []string
}

// Backend mimics the subset of Typesense the sync core uses. Document and
// collection reads resolve aliases the way the server does.
type Backend struct {
	mu          sync.Mutex
	collections map[string]*collection
	aliases     map[string]string
	synonyms    map[string]map[string][]string
	calls       map[string]int
	imported    map[string]int
	failures    map[string]error

	// ValidateRequired rejects imported documents that miss a non-optional
	// schema field, per document, like the real server.
	ValidateRequired bool

	// HealthErr is returned by Health when set.
	HealthErr error
}

var _ typesense.Backend = (*Backend)(nil)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		collections: map[string]*collection{},
		aliases:     map[string]string{},
		synonyms:    map[string]map[string][]string{},
		calls:       map[string]int{},
		imported:    map[string]int{},
		failures:    map[string]error{},
	}
}

// Fail makes every op call addressing name return err until cleared with a
// nil err. An empty name matches any target.
func (b *Backend) Fail(op, name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := op + ":" + name
	if err == nil {
		delete(b.failures, key)
		return
	}
	b.failures[key] = err
}

// Calls returns how many times op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Mutations returns the number of collection and alias mutations issued.
func (b *Backend) Mutations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for op, c := range b.calls {
		if mutatingOps[op] {
			n += c
		}
	}
	return n
}

// Imported returns how many documents were sent to the physical collection.
func (b *Backend) Imported(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.imported[collection]
}

// ResetCalls clears call and import counters but keeps data.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = map[string]int{}
	b.imported = map[string]int{}
}

// Seed creates a collection holding docs without touching counters.
func (b *Backend) Seed(schema typesense.CollectionSchema, docs ...model.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.newCollection(schema)
	for _, d := range docs {
		c.put(cloneDoc(d))
	}
}

// SeedAlias points alias at collection without touching counters.
func (b *Backend) SeedAlias(alias, collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aliases[alias] = collection
}

// Documents returns a copy of the documents stored in a physical collection
// (or the alias target), in insertion order.
func (b *Backend) Documents(name string) []model.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[b.resolve(name)]
	if !ok {
		return nil
	}
	out := make([]model.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, cloneDoc(c.docs[id]))
	}
	return out
}

// HasCollection reports whether a physical collection exists.
func (b *Backend) HasCollection(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.collections[name]
	return ok
}

// Synonyms returns the synonym set stored under id.
func (b *Backend) Synonyms(collection, id string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.synonyms[b.resolve(collection)][id]
}

func (b *Backend) enter(op, name string) error {
	b.calls[op]++
	if err, ok := b.failures[op+":"+name]; ok {
		return err
	}
	if err, ok := b.failures[op+":"]; ok {
		return err
	}
	return nil
}

func (b *Backend) resolve(name string) string {
	if target, ok := b.aliases[name]; ok {
		return target
	}
	return name
}

func (b *Backend) newCollection(schema typesense.CollectionSchema) *collection {
	c := &collection{
		meta: typesense.Collection{CollectionSchema: cloneSchema(schema), CreatedAt: time.Now().Unix()},
		docs: map[string]model.Document{},
	}
	b.collections[schema.Name] = c
	return c
}

func (c *collection) put(d model.Document) {
	id := d.ID()
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = d
	c.meta.NumDocuments = int64(len(c.docs))
}

func (c *collection) remove(id string) bool {
	if _, ok := c.docs[id]; !ok {
		return false
	}
	delete(c.docs, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.meta.NumDocuments = int64(len(c.docs))
	return true
}

func notFound(op, name string) error {
	return &typesense.HTTPError{Op: op, Name: name, Status: http.StatusNotFound, Body: `{"message":"Not Found"}`}
}

func (b *Backend) CreateCollection(_ context.Context, schema typesense.CollectionSchema) (*typesense.Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpCreateCollection, schema.Name); err != nil {
		return nil, err
	}
	if _, ok := b.collections[schema.Name]; ok {
		return nil, &typesense.HTTPError{
			Op: "create collection", Name: schema.Name, Status: http.StatusConflict,
			Body: fmt.Sprintf(`{"message":"A collection with name %s already exists."}`, schema.Name),
		}
	}
	c := b.newCollection(schema)
	out := cloneCollection(c.meta)
	return &out, nil
}

func (b *Backend) RetrieveCollection(_ context.Context, name string) (*typesense.Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpRetrieveCollection, name); err != nil {
		return nil, err
	}
	c, ok := b.collections[b.resolve(name)]
	if !ok {
		return nil, notFound("retrieve collection", name)
	}
	out := cloneCollection(c.meta)
	return &out, nil
}

func (b *Backend) ListCollections(_ context.Context) ([]*typesense.Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpListCollections, ""); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(b.collections))
	for n := range b.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*typesense.Collection, 0, len(names))
	for _, n := range names {
		c := cloneCollection(b.collections[n].meta)
		out = append(out, &c)
	}
	return out, nil
}

func (b *Backend) UpdateCollection(_ context.Context, name string, update typesense.CollectionUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpUpdateCollection, name); err != nil {
		return err
	}
	c, ok := b.collections[b.resolve(name)]
	if !ok {
		return notFound("update collection", name)
	}

	fields := append([]typesense.Field(nil), c.meta.Fields...)
	for _, f := range update.Fields {
		idx := -1
		for i := range fields {
			if fields[i].Name == f.Name {
				idx = i
				break
			}
		}
		if f.Drop != nil && *f.Drop {
			if idx < 0 {
				return &typesense.HTTPError{Op: "update collection", Name: name, Status: http.StatusBadRequest,
					Body: fmt.Sprintf(`{"message":"Field %s is not part of collection schema."}`, f.Name)}
			}
			fields = append(fields[:idx], fields[idx+1:]...)
			continue
		}
		if idx >= 0 {
			return &typesense.HTTPError{Op: "update collection", Name: name, Status: http.StatusBadRequest,
				Body: fmt.Sprintf(`{"message":"Field %s is already part of the schema."}`, f.Name)}
		}
		fields = append(fields, f)
	}
	c.meta.Fields = fields
	if update.Metadata != nil {
		c.meta.Metadata = cloneMap(update.Metadata)
	}
	return nil
}

func (b *Backend) DeleteCollection(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDeleteCollection, name); err != nil {
		return err
	}
	if _, ok := b.collections[name]; !ok {
		return notFound("delete collection", name)
	}
	delete(b.collections, name)
	delete(b.synonyms, name)
	return nil
}

func (b *Backend) UpsertAlias(_ context.Context, name, target string) (*typesense.Alias, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpUpsertAlias, name); err != nil {
		return nil, err
	}
	b.aliases[name] = target
	return &typesense.Alias{Name: name, CollectionName: target}, nil
}

func (b *Backend) RetrieveAlias(_ context.Context, name string) (*typesense.Alias, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpRetrieveAlias, name); err != nil {
		return nil, err
	}
	target, ok := b.aliases[name]
	if !ok {
		return nil, notFound("retrieve alias", name)
	}
	return &typesense.Alias{Name: name, CollectionName: target}, nil
}

func (b *Backend) ListAliases(_ context.Context) ([]*typesense.Alias, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpListAliases, ""); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(b.aliases))
	for n := range b.aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*typesense.Alias, 0, len(names))
	for _, n := range names {
		out = append(out, &typesense.Alias{Name: n, CollectionName: b.aliases[n]})
	}
	return out, nil
}

func (b *Backend) DeleteAlias(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDeleteAlias, name); err != nil {
		return err
	}
	if _, ok := b.aliases[name]; !ok {
		return notFound("delete alias", name)
	}
	delete(b.aliases, name)
	return nil
}

func (b *Backend) ImportDocuments(_ context.Context, name string, docs []model.Document, _ typesense.ImportAction) ([]typesense.ImportResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpImport, name); err != nil {
		return nil, err
	}
	physical := b.resolve(name)
	c, ok := b.collections[physical]
	if !ok {
		return nil, notFound("import documents", name)
	}

	results := make([]typesense.ImportResult, 0, len(docs))
	for _, d := range docs {
		b.imported[physical]++
		if msg := b.rejectDocument(c, d); msg != "" {
			results = append(results, typesense.ImportResult{Success: false, Error: msg, Document: fmt.Sprint(map[string]any(d))})
			continue
		}
		id := d.ID()
		nd := cloneDoc(d)
		nd["id"] = id
		c.put(nd)
		results = append(results, typesense.ImportResult{Success: true, ID: id})
	}
	return results, nil
}

// rejectDocument applies upsert validation, the only import action in use.
func (b *Backend) rejectDocument(c *collection, d model.Document) string {
	if d.ID() == "" {
		return "Document is missing the `id` field."
	}
	if !b.ValidateRequired {
		return ""
	}
	for _, f := range c.meta.Fields {
		if f.Name == "id" || (f.Optional != nil && *f.Optional) || strings.ContainsAny(f.Name, ".*") || f.Embed != nil {
			continue
		}
		if _, ok := d[f.Name]; !ok {
			return fmt.Sprintf("Field `%s` has been declared in the schema, but is not found in the document.", f.Name)
		}
	}
	return ""
}

// SearchDocuments supports wildcard queries with paging, include_fields and
// an "id:[...]" or "field:=value" filter.
func (b *Backend) SearchDocuments(_ context.Context, name string, params typesense.SearchParams) (*typesense.SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSearch, name); err != nil {
		return nil, err
	}
	c, ok := b.collections[b.resolve(name)]
	if !ok {
		return nil, notFound("search documents", name)
	}

	match := parseFilter(params.FilterBy)
	var matched []model.Document
	for _, id := range c.order {
		if d := c.docs[id]; match(d) {
			matched = append(matched, d)
		}
	}

	page, perPage := params.Page, params.PerPage
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}
	res := &typesense.SearchResult{Found: len(matched), OutOf: len(c.docs), Page: page, Hits: []typesense.Hit{}}
	start := (page - 1) * perPage
	if start >= len(matched) {
		return res, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	include := splitList(params.IncludeFields)
	for _, d := range matched[start:end] {
		res.Hits = append(res.Hits, typesense.Hit{Document: project(d, include)})
	}
	return res, nil
}

func (b *Backend) DeleteDocument(_ context.Context, name, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDeleteDocument, name); err != nil {
		return err
	}
	c, ok := b.collections[b.resolve(name)]
	if !ok || !c.remove(id) {
		return notFound("delete document", name)
	}
	return nil
}

func (b *Backend) DeleteDocuments(_ context.Context, name, filterBy string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDeleteDocuments, name); err != nil {
		return 0, err
	}
	c, ok := b.collections[b.resolve(name)]
	if !ok {
		return 0, notFound("delete documents", name)
	}
	match := parseFilter(filterBy)
	var ids []string
	for _, id := range c.order {
		if match(c.docs[id]) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		c.remove(id)
	}
	return len(ids), nil
}

func (b *Backend) UpsertSynonym(_ context.Context, name, id string, synonyms []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpUpsertSynonym, name); err != nil {
		return err
	}
	physical := b.resolve(name)
	if _, ok := b.collections[physical]; !ok {
		return notFound("upsert synonym", name)
	}
	if b.synonyms[physical] == nil {
		b.synonyms[physical] = map[string][]string{}
	}
	b.synonyms[physical][id] = append([]string(nil), synonyms...)
	return nil
}

func (b *Backend) Health(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.HealthErr
}

func parseFilter(filter string) func(model.Document) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return func(model.Document) bool { return true }
	}
	field, value, ok := strings.Cut(filter, ":")
	if !ok {
		return func(model.Document) bool { return false }
	}
	value = strings.TrimPrefix(strings.TrimSpace(value), "=")
	var want []string
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		want = splitList(strings.Trim(value, "[]"))
	} else {
		want = []string{strings.Trim(value, "`")}
	}
	return func(d model.Document) bool {
		got := model.IDString(d[strings.TrimSpace(field)])
		for _, w := range want {
			if strings.Trim(w, "`") == got {
				return true
			}
		}
		return false
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func project(d model.Document, include []string) model.Document {
	if len(include) == 0 {
		return cloneDoc(d)
	}
	out := model.Document{}
	for _, f := range include {
		if v, ok := d[f]; ok {
			out[f] = v
		}
	}
	return out
}

func cloneDoc(d model.Document) model.Document {
	if d == nil {
		return nil
	}
	out := make(model.Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSchema(s typesense.CollectionSchema) typesense.CollectionSchema {
	s.Fields = append([]typesense.Field(nil), s.Fields...)
	s.Metadata = cloneMap(s.Metadata)
	s.TokenSeparators = append([]string(nil), s.TokenSeparators...)
	s.SymbolsToIndex = append([]string(nil), s.SymbolsToIndex...)
	return s
}

func cloneCollection(c typesense.Collection) typesense.Collection {
	c.CollectionSchema = cloneSchema(c.CollectionSchema)
	return c
}
