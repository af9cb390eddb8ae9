// Package dualwrite records, per alias, the collection pair that must both
// receive writes while a cutover is in flight.
package dualwrite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/kv"
)

const (
	keyPrefix = "typesense_updating."

	// DefaultTTL bounds how long an abandoned record keeps fanning out writes.
	DefaultTTL = 600 * time.Second
)

// Pair is the old and new physical collection of one cutover.
type Pair struct {
	Old string
	New string
}

// Targets lists the collections a write must reach, old first.
func (p Pair) Targets() []string {
	if p.Old == "" || p.Old == p.New {
		return []string{p.New}
	}
	return []string{p.Old, p.New}
}

// Registry stores pairs in a shared kv.Store. When a record expires writes
// silently fall back to the alias target; writes meant only for the new
// collection during that gap are lost until the next reindex.
type Registry struct {
	store kv.Store
	ttl   time.Duration
	log   zerolog.Logger
}

func NewRegistry(store kv.Store, ttl time.Duration, log zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{store: store, ttl: ttl, log: log}
}

// Key is the namespaced storage key for alias.
func Key(alias string) string { return keyPrefix + alias }

func (r *Registry) Enable(ctx context.Context, alias, oldCollection, newCollection string) error {
	if newCollection == "" {
		return fmt.Errorf("enable dual writes for %q: new collection is empty", alias)
	}
	value := oldCollection + "," + newCollection
	if err := r.store.Put(ctx, Key(alias), value, r.ttl); err != nil {
		return fmt.Errorf("enable dual writes for %q: %w", alias, err)
	}
	r.log.Info().
		Str("alias", alias).
		Str("old", oldCollection).
		Str("new", newCollection).
		Dur("ttl", r.ttl).
		Msg("dual writes enabled")
	return nil
}

// Get returns the in-flight pair for alias, if any.
func (r *Registry) Get(ctx context.Context, alias string) (Pair, bool, error) {
	v, ok, err := r.store.Get(ctx, Key(alias))
	if err != nil {
		return Pair{}, false, fmt.Errorf("read dual writes for %q: %w", alias, err)
	}
	if !ok {
		return Pair{}, false, nil
	}
	oldName, newName, found := strings.Cut(v, ",")
	if !found || newName == "" {
		r.log.Warn().Str("alias", alias).Str("value", v).Msg("ignoring malformed dual write record")
		return Pair{}, false, nil
	}
	return Pair{Old: oldName, New: newName}, true, nil
}

func (r *Registry) Disable(ctx context.Context, alias string) error {
	if err := r.store.Delete(ctx, Key(alias)); err != nil {
		return fmt.Errorf("disable dual writes for %q: %w", alias, err)
	}
	r.log.Info().Str("alias", alias).Msg("dual writes disabled")
	return nil
}
