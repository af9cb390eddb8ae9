// Package alias maps stable collection names onto the physical collections
// currently serving them.
package alias

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/typesense"
)

// Resolver answers alias questions against the backend. It holds no cache;
// use Snapshot to share one view across a single migration run.
type Resolver struct {
	backend typesense.Backend
	log     zerolog.Logger
}

func NewResolver(backend typesense.Backend, log zerolog.Logger) *Resolver {
	return &Resolver{backend: backend, log: log}
}

// Resolve returns the collection alias points at. A missing alias is not an
// error: it yields ("", false, nil).
func (r *Resolver) Resolve(ctx context.Context, alias string) (string, bool, error) {
	a, err := r.backend.RetrieveAlias(ctx, alias)
	if err != nil {
		if typesense.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolve alias %q: %w", alias, err)
	}
	return a.CollectionName, true, nil
}

// CollectionExists lists every collection and tests membership.
func (r *Resolver) CollectionExists(ctx context.Context, name string) (bool, error) {
	cols, err := r.backend.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("list collections: %w", err)
	}
	for _, c := range cols {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// AliasExists lists every alias and tests membership.
func (r *Resolver) AliasExists(ctx context.Context, name string) (bool, error) {
	aliases, err := r.backend.ListAliases(ctx)
	if err != nil {
		return false, fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Target returns the physical collection documents for alias live in: the
// alias target, or a raw collection carrying the alias name itself.
func (r *Resolver) Target(ctx context.Context, alias string) (string, bool, error) {
	name, ok, err := r.Resolve(ctx, alias)
	if err != nil || ok {
		return name, ok, err
	}
	if _, err := r.backend.RetrieveCollection(ctx, alias); err != nil {
		if typesense.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("retrieve collection %q: %w", alias, err)
	}
	return alias, true, nil
}

// Snapshot loads the full collection and alias lists once.
func (r *Resolver) Snapshot(ctx context.Context) (*Snapshot, error) {
	cols, err := r.backend.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	aliases, err := r.backend.ListAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}

	s := &Snapshot{
		collections: make(map[string]*typesense.Collection, len(cols)),
		aliases:     make(map[string]string, len(aliases)),
	}
	for _, c := range cols {
		s.collections[c.Name] = c
	}
	for _, a := range aliases {
		s.aliases[a.Name] = a.CollectionName
	}
	r.log.Debug().Int("collections", len(cols)).Int("aliases", len(aliases)).Msg("alias snapshot loaded")
	return s, nil
}

// Snapshot is a point-in-time view of collections and aliases. It is not
// refreshed and must not outlive the run that loaded it.
type Snapshot struct {
	collections map[string]*typesense.Collection
	aliases     map[string]string
}

func (s *Snapshot) Resolve(alias string) (string, bool) {
	c, ok := s.aliases[alias]
	return c, ok
}

func (s *Snapshot) AliasExists(name string) bool {
	_, ok := s.aliases[name]
	return ok
}

func (s *Snapshot) CollectionExists(name string) bool {
	_, ok := s.collections[name]
	return ok
}

// Collection returns the listed collection, schema included.
func (s *Snapshot) Collection(name string) (*typesense.Collection, bool) {
	c, ok := s.collections[name]
	return c, ok
}
