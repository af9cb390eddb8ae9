// Package reindex repopulates a physical collection from the relational
// store, never from another collection.
package reindex

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ympact/typesense-sync/internal/metrics"
	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/searchable"
	"github.com/ympact/typesense-sync/internal/typesense"
)

type Options struct {
	BatchSize int
	// Workers bounds concurrent imports; at most Workers batches are held.
	Workers int
	// Rate caps batches per second. Zero means unlimited.
	Rate float64
}

type Coordinator struct {
	backend typesense.Backend
	opts    Options
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(backend typesense.Backend, opts Options, log zerolog.Logger) *Coordinator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	c := &Coordinator{backend: backend, opts: opts, log: log}
	if opts.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return c
}

// Reindex streams every indexable row of m into collection and returns the
// number of documents imported. The first failing batch stops the run.
func (c *Coordinator) Reindex(ctx context.Context, m searchable.Model, collection string) (int, error) {
	alias := m.SearchableAs()
	log := c.log.With().Str("alias", alias).Str("collection", collection).Logger()

	var imported atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	err := m.Records().Stream(gctx, c.opts.BatchSize, func(rows []model.Document) error {
		docs := make([]model.Document, 0, len(rows))
		for _, d := range rows {
			if m.ShouldIndex(d) {
				docs = append(docs, d)
			}
		}
		if len(docs) == 0 {
			return nil
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(gctx); err != nil {
				return err
			}
		}
		// Go blocks while Workers imports are in flight
		g.Go(func() error {
			results, err := c.backend.ImportDocuments(gctx, collection, docs, typesense.ActionUpsert)
			if err != nil {
				return err
			}
			if err := typesense.CheckImport(collection, results); err != nil {
				return err
			}
			imported.Add(int64(len(docs)))
			metrics.ReindexedDocuments.WithLabelValues(alias).Add(float64(len(docs)))
			log.Debug().Int("batch", len(docs)).Msg("batch imported")
			return nil
		})
		return gctx.Err()
	})
	// a worker error is the cause of a cancelled stream, so it wins
	if werr := g.Wait(); werr != nil {
		err = werr
	}
	n := int(imported.Load())
	if err != nil {
		return n, fmt.Errorf("reindex %q into %q: %w", alias, collection, err)
	}
	log.Info().Int("documents", n).Msg("reindex complete")
	return n, nil
}
