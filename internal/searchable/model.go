// Package searchable defines the capability a model declares to take part
// in index syncing, and the explicit registry models are enrolled in.
package searchable

import (
	"context"
	"fmt"
	"sync"

	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/schema"
)

// RecordSource is the relational source of truth for one model.
type RecordSource interface {
	// Stream visits every row as documents, batchSize at a time.
	Stream(ctx context.Context, batchSize int, fn func([]model.Document) error) error
	// Existing returns the subset of ids that still have a row.
	Existing(ctx context.Context, ids []string) ([]string, error)
}

// RowCounter is implemented by sources that can count their rows cheaply.
type RowCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Model is implemented by every type mirrored into a collection.
type Model interface {
	// SearchableAs is the alias clients query.
	SearchableAs() string
	// Schema builds a fresh descriptor on every call.
	Schema() (*schema.Descriptor, error)
	ShouldIndex(doc model.Document) bool
	Records() RecordSource
}

// Definition is a Model assembled from parts.
type Definition struct {
	Alias    string
	Source   RecordSource
	Describe func() (*schema.Descriptor, error)
	// Filter reports whether a document belongs in the index. Nil keeps all.
	Filter func(model.Document) bool
}

var _ Model = (*Definition)(nil)

func (d *Definition) SearchableAs() string { return d.Alias }

func (d *Definition) Schema() (*schema.Descriptor, error) {
	if d.Describe == nil {
		return nil, fmt.Errorf("%w: model %q has no schema", model.ErrConfiguration, d.Alias)
	}
	return d.Describe()
}

func (d *Definition) ShouldIndex(doc model.Document) bool {
	return d.Filter == nil || d.Filter(doc)
}

func (d *Definition) Records() RecordSource { return d.Source }

// Registry holds the models enrolled at startup, in registration order.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{models: map[string]Model{}}
}

// Register enrolls m. Aliases are unique.
func (r *Registry) Register(m Model) error {
	if m == nil || m.SearchableAs() == "" {
		return fmt.Errorf("%w: model without alias", model.ErrConfiguration)
	}
	if m.Records() == nil {
		return fmt.Errorf("%w: model %q has no record source", model.ErrConfiguration, m.SearchableAs())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	alias := m.SearchableAs()
	if _, dup := r.models[alias]; dup {
		return fmt.Errorf("%w: model %q registered twice", model.ErrConfiguration, alias)
	}
	r.models[alias] = m
	r.order = append(r.order, alias)
	return nil
}

func (r *Registry) Get(alias string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[alias]
	return m, ok
}

// All returns every registered model.
func (r *Registry) All() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Model, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, r.models[a])
	}
	return out
}

// Select returns the named models, or all of them when names is empty.
func (r *Registry) Select(names ...string) ([]Model, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]Model, 0, len(names))
	for _, n := range names {
		m, ok := r.Get(n)
		if !ok {
			return nil, fmt.Errorf("%w: unknown model %q", model.ErrNotFound, n)
		}
		out = append(out, m)
	}
	return out, nil
}
