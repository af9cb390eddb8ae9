// Package scheduler periodically brings every registered model's collection
// up to date and expires stale sync state.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/migrate"
	"github.com/ympact/typesense-sync/internal/searchable"
)

// Updater runs a batch schema update.
type Updater interface {
	UpdateAll(ctx context.Context, models []searchable.Model, force bool) (migrate.Report, error)
}

// Sweeper drops expired dual-write records and leases.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Config struct {
	Interval time.Duration
	// RunOnStart triggers a cycle before the first tick.
	RunOnStart bool
}

// Worker drives Updater on a fixed cadence.
type Worker struct {
	updater Updater
	sweeper Sweeper
	models  func() []searchable.Model
	cfg     Config
	log     zerolog.Logger
}

func NewWorker(updater Updater, sweeper Sweeper, models func() []searchable.Model, cfg Config, log zerolog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Worker{updater: updater, sweeper: sweeper, models: models, cfg: cfg, log: log}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Interval).Msg("schema scheduler starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	if w.cfg.RunOnStart {
		w.RunOnce(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("schema scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps expired state then updates every model. Failures are
// logged; the next tick retries.
func (w *Worker) RunOnce(ctx context.Context) migrate.Report {
	if w.sweeper != nil {
		n, err := w.sweeper.Sweep(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("sweep expired state")
		} else if n > 0 {
			w.log.Info().Int("removed", n).Msg("expired state swept")
		}
	}

	rep, err := w.updater.UpdateAll(ctx, w.models(), false)
	if err != nil {
		w.log.Error().Err(err).Int("failed", len(rep.Failed())).Int("models", len(rep.Results)).Msg("scheduled schema update")
		return rep
	}
	performed := 0
	for _, r := range rep.Results {
		if r.Outcome.Performed() {
			performed++
		}
	}
	w.log.Info().Int("models", len(rep.Results)).Int("changed", performed).Msg("scheduled schema update")
	return rep
}
