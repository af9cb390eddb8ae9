// Package engine is the document write path. During a cutover every write
// is fanned out to both collections named by the dual-write registry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/alias"
	"github.com/ympact/typesense-sync/internal/dualwrite"
	"github.com/ympact/typesense-sync/internal/metrics"
	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/searchable"
	"github.com/ympact/typesense-sync/internal/typesense"
)

// deleteChunk bounds the ids carried by one filter_by expression.
const deleteChunk = 250

// SchemaEnsurer provisions the collection of a model that has none yet.
type SchemaEnsurer interface {
	UpdateSchema(ctx context.Context, m searchable.Model, force bool) (bool, error)
}

type Engine struct {
	backend  typesense.Backend
	resolver *alias.Resolver
	dual     *dualwrite.Registry
	ensurer  SchemaEnsurer
	log      zerolog.Logger
}

func New(backend typesense.Backend, resolver *alias.Resolver, dual *dualwrite.Registry, log zerolog.Logger) *Engine {
	return &Engine{backend: backend, resolver: resolver, dual: dual, log: log}
}

// WithEnsurer makes writes to a model without a collection create it first.
func (e *Engine) WithEnsurer(s SchemaEnsurer) *Engine {
	e.ensurer = s
	return e
}

// Targets returns the physical collections a write for m must reach.
func (e *Engine) Targets(ctx context.Context, m searchable.Model) ([]string, error) {
	name := m.SearchableAs()
	pair, ok, err := e.dual.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return pair.Targets(), nil
	}

	target, ok, err := e.resolver.Target(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return []string{target}, nil
	}
	if e.ensurer == nil {
		return nil, fmt.Errorf("%w: no collection serves %q", model.ErrNotFound, name)
	}

	if _, err := e.ensurer.UpdateSchema(ctx, m, false); err != nil {
		return nil, fmt.Errorf("create collection for %q: %w", name, err)
	}
	target, ok, err = e.resolver.Target(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no collection serves %q", model.ErrNotFound, name)
	}
	return []string{target}, nil
}

// Update upserts docs into every target. A failing target is logged and
// does not stop the others; all failures are returned joined.
func (e *Engine) Update(ctx context.Context, m searchable.Model, docs []model.Document) error {
	batch := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		if m.ShouldIndex(d) {
			batch = append(batch, d)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	targets, err := e.Targets(ctx, m)
	if err != nil {
		return err
	}
	name := m.SearchableAs()
	if len(targets) > 1 {
		metrics.DualWritesTotal.WithLabelValues(name).Inc()
	}

	var errs []error
	for _, target := range targets {
		results, err := e.backend.ImportDocuments(ctx, target, batch, typesense.ActionUpsert)
		if err == nil {
			err = typesense.CheckImport(target, results)
		}
		if err != nil {
			metrics.ImportsTotal.WithLabelValues(name, target, "error").Inc()
			e.log.Error().Err(err).Str("alias", name).Str("collection", target).Int("documents", len(batch)).Msg("import failed")
			errs = append(errs, err)
			continue
		}
		metrics.ImportsTotal.WithLabelValues(name, target, "ok").Inc()
	}
	return errors.Join(errs...)
}

// Delete removes ids from every target, log-and-continue like Update.
func (e *Engine) Delete(ctx context.Context, m searchable.Model, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	targets, err := e.Targets(ctx, m)
	if err != nil {
		return err
	}

	var errs []error
	for _, target := range targets {
		removed := 0
		for start := 0; start < len(ids); start += deleteChunk {
			end := min(start+deleteChunk, len(ids))
			n, err := e.backend.DeleteDocuments(ctx, target, IDFilter(ids[start:end]))
			if err != nil {
				e.log.Error().Err(err).Str("alias", m.SearchableAs()).Str("collection", target).Msg("delete failed")
				errs = append(errs, err)
				break
			}
			removed += n
		}
		e.log.Debug().Str("alias", m.SearchableAs()).Str("collection", target).Int("removed", removed).Msg("documents deleted")
	}
	return errors.Join(errs...)
}

// UpsertSynonyms stores a multi-way synonym set in every target.
func (e *Engine) UpsertSynonyms(ctx context.Context, m searchable.Model, id string, synonyms []string) error {
	targets, err := e.Targets(ctx, m)
	if err != nil {
		return err
	}
	var errs []error
	for _, target := range targets {
		if err := e.backend.UpsertSynonym(ctx, target, id, synonyms); err != nil {
			e.log.Error().Err(err).Str("alias", m.SearchableAs()).Str("collection", target).Str("synonym", id).Msg("synonym upsert failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IDFilter renders a filter_by expression matching ids.
func IDFilter(ids []string) string {
	return "id:[" + strings.Join(ids, ",") + "]"
}
