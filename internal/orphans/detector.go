// Package orphans finds index documents whose row is gone from the
// relational store.
package orphans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/alias"
	"github.com/ympact/typesense-sync/internal/metrics"
	"github.com/ympact/typesense-sync/internal/searchable"
	"github.com/ympact/typesense-sync/internal/typesense"
)

const DefaultPageSize = 10

type Detector struct {
	backend  typesense.Backend
	resolver *alias.Resolver
	pageSize int
	log      zerolog.Logger
}

func New(backend typesense.Backend, pageSize int, log zerolog.Logger) *Detector {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Detector{
		backend:  backend,
		resolver: alias.NewResolver(backend, log),
		pageSize: pageSize,
		log:      log,
	}
}

// FindOrphans pages through m's collection and returns the ids with no
// row in the store. Documents added or removed while paging can shift page
// boundaries, so the result is a best-effort snapshot.
func (d *Detector) FindOrphans(ctx context.Context, m searchable.Model) ([]string, error) {
	desc, err := m.Schema()
	if err != nil {
		return nil, fmt.Errorf("schema for %q: %w", m.SearchableAs(), err)
	}
	name := m.SearchableAs()
	params := typesense.SearchParams{
		Q:             "*",
		QueryBy:       strings.Join(desc.StringFields(), ","),
		IncludeFields: "id",
		PerPage:       d.pageSize,
	}

	var orphans []string
	for page := 1; ; page++ {
		params.Page = page
		res, err := d.backend.SearchDocuments(ctx, name, params)
		if err != nil {
			return nil, fmt.Errorf("page %d of %q: %w", page, name, err)
		}
		ids := res.DocumentIDs()
		if len(ids) == 0 {
			break
		}

		existing, err := m.Records().Existing(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("lookup rows for %q: %w", name, err)
		}
		present := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			present[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := present[id]; !ok {
				orphans = append(orphans, id)
			}
		}

		if res.Found < page*d.pageSize {
			break
		}
	}

	metrics.OrphansFound.WithLabelValues(name).Add(float64(len(orphans)))
	d.log.Info().Str("alias", name).Int("orphans", len(orphans)).Msg("orphan scan complete")
	return orphans, nil
}

// RemoveOrphans deletes ids one by one from the collection serving m.
// Already-missing documents count as removed. Failures do not stop the
// remaining deletions.
func (d *Detector) RemoveOrphans(ctx context.Context, m searchable.Model, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	name := m.SearchableAs()
	target, ok, err := d.resolver.Target(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("no collection serves %q", name)
	}

	removed := 0
	var errs []error
	for _, id := range ids {
		err := d.backend.DeleteDocument(ctx, target, id)
		if err != nil && !typesense.IsNotFound(err) {
			d.log.Error().Err(err).Str("alias", name).Str("collection", target).Str("id", id).Msg("orphan delete failed")
			errs = append(errs, err)
			continue
		}
		removed++
	}
	metrics.OrphansRemoved.WithLabelValues(name).Add(float64(removed))
	d.log.Info().Str("alias", name).Str("collection", target).Int("removed", removed).Msg("orphans removed")
	return removed, errors.Join(errs...)
}

// Result is one model's line in a removal report.
type Result struct {
	Alias   string
	Found   int
	Removed int
	Err     error
}

// RemoveAll finds and removes orphans for every model. One model failing
// does not stop the others; the returned error joins all failures.
func (d *Detector) RemoveAll(ctx context.Context, models []searchable.Model) ([]Result, error) {
	results := make([]Result, 0, len(models))
	var errs []error
	for _, m := range models {
		res := Result{Alias: m.SearchableAs()}
		ids, err := d.FindOrphans(ctx, m)
		if err == nil {
			res.Found = len(ids)
			res.Removed, err = d.RemoveOrphans(ctx, m, ids)
		}
		if err != nil {
			res.Err = err
			errs = append(errs, fmt.Errorf("%s: %w", res.Alias, err))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
