// Package factory builds the sync components from configuration.
package factory

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/alias"
	"github.com/ympact/typesense-sync/internal/config"
	"github.com/ympact/typesense-sync/internal/differ"
	"github.com/ympact/typesense-sync/internal/dualwrite"
	"github.com/ympact/typesense-sync/internal/engine"
	"github.com/ympact/typesense-sync/internal/kv"
	"github.com/ympact/typesense-sync/internal/migrate"
	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/orphans"
	"github.com/ympact/typesense-sync/internal/reindex"
	"github.com/ympact/typesense-sync/internal/searchable"
	"github.com/ympact/typesense-sync/internal/store"
	"github.com/ympact/typesense-sync/internal/typesense"
)

// NewStore opens the relational database named by the config.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*store.DB, error) {
	source := cfg.PostgresDSN
	if cfg.DBDriver == string(store.SQLite) {
		source = cfg.SQLitePath
	}
	db, err := store.Open(cfg.DBDriver, source)
	if err != nil {
		return nil, err
	}
	if err := db.HealthPing(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}
	log.Debug().Str("db_driver", cfg.DBDriver).Msg("relational store connected")
	return db, nil
}

// NewStateStore returns the store for dual-write records and leases.
// "memory" state only coordinates within one process.
func NewStateStore(ctx context.Context, cfg *config.Config, db *store.DB, log zerolog.Logger) (kv.Store, error) {
	if cfg.StateDriver == "memory" {
		log.Warn().Msg("sync state kept in memory; dual writes and leases are not shared between processes")
		return kv.NewMemoryStore(nil), nil
	}
	s := kv.NewSQLStore(db, nil)
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func NewBackend(cfg *config.Config, log zerolog.Logger) *typesense.Client {
	return typesense.NewClient(typesense.Options{
		URL:     cfg.TypesenseURL,
		APIKey:  cfg.TypesenseAPIKey,
		Timeout: cfg.TypesenseTimeout,
	}, log)
}

// LoadModels reads the YAML manifest into a fresh registry. The config's
// DEFAULT_LOCALE applies when the manifest sets none.
func LoadModels(cfg *config.Config, db *store.DB) (*searchable.Registry, error) {
	raw, err := os.ReadFile(cfg.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", model.ErrConfiguration, err)
	}
	m, err := searchable.ParseManifest(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if m.DefaultLocale == "" {
		m.DefaultLocale = cfg.DefaultLocale
	}
	reg := searchable.NewRegistry()
	if err := m.Register(db, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// App holds every component a scoutctl command may need.
type App struct {
	DB       *store.DB
	Backend  typesense.Backend
	State    kv.Store
	Models   *searchable.Registry
	Dual     *dualwrite.Registry
	Reindex  *reindex.Coordinator
	Migrator *migrate.Manager
	Engine   *engine.Engine
	Orphans  *orphans.Detector
}

// Build wires the components for cfg.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	db, err := NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("relational store unavailable")
		return nil, err
	}
	models, err := LoadModels(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	state, err := NewStateStore(ctx, cfg, db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app, err := Assemble(cfg, db, NewBackend(cfg, log), state, models, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// Assemble wires the sync components over already opened dependencies.
func Assemble(cfg *config.Config, db *store.DB, backend typesense.Backend, state kv.Store, models *searchable.Registry, log zerolog.Logger) (*App, error) {
	cmp, err := differ.ComparatorFor(cfg.VersionOrdering)
	if err != nil {
		return nil, err
	}
	dual := dualwrite.NewRegistry(state, cfg.DualWriteTTL, log)
	rx := reindex.New(backend, reindex.Options{
		BatchSize: cfg.ReindexBatchSize,
		Workers:   cfg.ReindexWorkers,
		Rate:      cfg.ReindexRate,
	}, log)
	mgr := migrate.New(backend, dual, rx, state, migrate.Options{
		DualWrites: cfg.DualWrites,
		Comparator: cmp,
		LockTTL:    cfg.LockTTL,
		LockWait:   cfg.LockWait,
	}, log)
	eng := engine.New(backend, alias.NewResolver(backend, log), dual, log).WithEnsurer(mgr)

	return &App{
		DB:       db,
		Backend:  backend,
		State:    state,
		Models:   models,
		Dual:     dual,
		Reindex:  rx,
		Migrator: mgr,
		Engine:   eng,
		Orphans:  orphans.New(backend, cfg.OrphanPageSize, log),
	}, nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
