// Package migrate keeps Typesense collections in line with model schemas,
// either by patching a collection in place or by a zero-downtime cutover to
// a freshly built collection behind the model's alias.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/alias"
	"github.com/ympact/typesense-sync/internal/differ"
	"github.com/ympact/typesense-sync/internal/dualwrite"
	"github.com/ympact/typesense-sync/internal/kv"
	"github.com/ympact/typesense-sync/internal/metrics"
	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/schema"
	"github.com/ympact/typesense-sync/internal/searchable"
	"github.com/ympact/typesense-sync/internal/typesense"
)

const suffixLayout = "20060102150405"

// Reindexer repopulates a physical collection from the relational store.
type Reindexer interface {
	Reindex(ctx context.Context, m searchable.Model, collection string) (int, error)
}

type Options struct {
	// DualWrites selects alias cutovers over in-place patches.
	DualWrites bool
	Comparator differ.VersionComparator
	LockTTL    time.Duration
	// LockWait is how long to retry a held lease. Zero tries once.
	LockWait time.Duration
	Now      func() time.Time
}

type Manager struct {
	backend   typesense.Backend
	resolver  *alias.Resolver
	dual      *dualwrite.Registry
	reindexer Reindexer
	leases    kv.Store
	opts      Options
	log       zerolog.Logger
}

func New(backend typesense.Backend, dual *dualwrite.Registry, reindexer Reindexer, leases kv.Store, opts Options, log zerolog.Logger) *Manager {
	if opts.Comparator == nil {
		opts.Comparator = differ.Lexical{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		backend:   backend,
		resolver:  alias.NewResolver(backend, log),
		dual:      dual,
		reindexer: reindexer,
		leases:    leases,
		opts:      opts,
		log:       log,
	}
}

// Outcome describes what one run did.
type Outcome struct {
	Alias    string
	Decision differ.Decision
	// Forced is set when force turned a skip into a rebuild.
	Forced bool
	// Trail lists the states the run passed through, ending in done,
	// skipped or failed.
	Trail         []State
	OldCollection string
	NewCollection string
	Patch         differ.Patch
	Reindexed     int
}

// Performed reports whether the run changed the backend.
func (o *Outcome) Performed() bool { return o != nil && !o.Decision.Skip() }

// remoteView is what the decision step sees for one alias.
type remoteView struct {
	// current is the collection documents are served from, "" when none.
	current string
	remote  *typesense.Collection
	// legacy is set when a raw collection carries the alias name.
	legacy bool
}

func viewOf(s *alias.Snapshot, name string) remoteView {
	v := remoteView{legacy: s.CollectionExists(name)}
	if target, ok := s.Resolve(name); ok {
		if c, ok := s.Collection(target); ok {
			v.current, v.remote = target, c
		}
		return v
	}
	if v.legacy {
		v.current = name
		v.remote, _ = s.Collection(name)
	}
	return v
}

// UpdateSchema brings m's collection up to date. It returns true when the
// collection is current afterwards, whether or not work was needed.
func (m *Manager) UpdateSchema(ctx context.Context, sm searchable.Model, force bool) (bool, error) {
	if _, err := m.Migrate(ctx, sm, force); err != nil {
		return false, err
	}
	return true, nil
}

// Migrate runs the state machine for one model under the alias lease.
func (m *Manager) Migrate(ctx context.Context, sm searchable.Model, force bool) (*Outcome, error) {
	start := m.opts.Now()
	name := sm.SearchableAs()

	// schema errors are configuration errors and abort before any backend call
	desired, err := sm.Schema()
	if err != nil {
		return nil, fmt.Errorf("schema for %q: %w", name, err)
	}

	l, err := m.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := l.release(ctx); err != nil {
			m.log.Warn().Err(err).Str("alias", name).Msg("release migration lease")
		}
	}()
	runCtx, stop := l.keepAlive(ctx, m.log.With().Str("alias", name).Logger())
	defer stop()

	r := &run{Manager: m, model: sm, desired: desired, alias: name, force: force, lease: l, machine: newMachine(name, m.log)}
	out, err := r.execute(runCtx)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.MigrationsTotal.WithLabelValues(name, out.Decision.String(), result).Inc()
	metrics.MigrationDuration.WithLabelValues(name).Observe(m.opts.Now().Sub(start).Seconds())
	return out, err
}

// IsUpdatable answers whether Migrate would do work, without side effects.
func (m *Manager) IsUpdatable(ctx context.Context, sm searchable.Model) (bool, error) {
	desired, err := sm.Schema()
	if err != nil {
		return false, fmt.Errorf("schema for %q: %w", sm.SearchableAs(), err)
	}
	snap, err := m.resolver.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	v := viewOf(snap, sm.SearchableAs())
	return !differ.Decide(v.remote, desired, m.opts.DualWrites, m.opts.Comparator).Skip(), nil
}

// CleanupLegacyCollection deletes a raw collection named like m's alias when
// the alias exists as well and so shadows it. A raw collection still serving
// as the only copy is left for the next cutover to retire.
func (m *Manager) CleanupLegacyCollection(ctx context.Context, sm searchable.Model) (bool, error) {
	name := sm.SearchableAs()
	l, err := m.acquire(ctx, name)
	if err != nil {
		return false, err
	}
	defer func() { _ = l.release(ctx) }()

	snap, err := m.resolver.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if !snap.CollectionExists(name) || !snap.AliasExists(name) {
		return false, nil
	}
	if err := m.backend.DeleteCollection(ctx, name); err != nil && !typesense.IsNotFound(err) {
		return false, fmt.Errorf("delete legacy collection %q: %w", name, err)
	}
	m.log.Info().Str("alias", name).Str("collection", name).Msg("legacy collection deleted")
	return true, nil
}

// run is the state of one Migrate call.
type run struct {
	*Manager
	model   searchable.Model
	desired *schema.Descriptor
	alias   string
	force   bool
	lease   *lease
	machine *machine
	out     Outcome
}

func (r *run) execute(ctx context.Context) (*Outcome, error) {
	r.out.Alias = r.alias
	err := r.steps(ctx)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(err, context.Canceled) && errors.Is(cause, ErrLeaseLost) {
			err = cause
		}
		at := r.machine.fail(ctx)
		r.log.Error().Err(err).Str("alias", r.alias).Str("state", at).
			Str("old", r.out.OldCollection).Str("new", r.out.NewCollection).Msg("migration failed")
		err = &Error{Alias: r.alias, State: at, Err: err}
	}
	r.out.Trail = append([]State(nil), r.machine.trail...)
	return &r.out, err
}

// advance renews the lease and moves the machine on, so a run that lost its
// lease stops before its next backend call.
func (r *run) advance(ctx context.Context, event string) error {
	if err := r.lease.renew(ctx); err != nil {
		return err
	}
	return r.machine.fire(ctx, event)
}

func (r *run) steps(ctx context.Context) error {
	if err := r.advance(ctx, eventDecide); err != nil {
		return err
	}
	snap, err := r.resolver.Snapshot(ctx)
	if err != nil {
		return err
	}
	view := viewOf(snap, r.alias)
	r.out.OldCollection = view.current

	decision := differ.Decide(view.remote, r.desired, r.opts.DualWrites, r.opts.Comparator)
	if r.force && decision.Skip() && r.opts.DualWrites {
		decision = differ.NeedsFullCutover
		r.out.Forced = true
	}
	r.out.Decision = decision
	r.log.Info().Str("alias", r.alias).Str("collection", view.current).
		Str("decision", decision.String()).Bool("forced", r.out.Forced).Msg("schema decision")

	switch decision {
	case differ.Unchanged, differ.NeedsVersionBump:
		return r.advance(ctx, eventSkip)
	case differ.NeedsPatch:
		return r.patch(ctx, view)
	default:
		return r.cutover(ctx, view)
	}
}

func (r *run) patch(ctx context.Context, view remoteView) error {
	if err := r.advance(ctx, eventPatch); err != nil {
		return err
	}
	p := differ.Diff(view.remote, r.desired)
	r.out.Patch = p
	if len(p.Immutable) > 0 {
		return fmt.Errorf("%w: %v", model.ErrRequiresCutover, p.Immutable)
	}

	update := p.Payload()
	if update.Metadata == nil {
		update.Metadata = r.desired.Metadata()
	}
	if err := r.backend.UpdateCollection(ctx, view.current, update); err != nil {
		return fmt.Errorf("update collection %q: %w", view.current, err)
	}
	r.log.Info().Str("alias", r.alias).Str("collection", view.current).Str("state", StatePatching).
		Str("patch", p.String()).Msg("collection patched")
	return r.advance(ctx, eventFinish)
}

func (r *run) physicalName() (string, error) {
	version := r.desired.Version()
	if r.opts.DualWrites && version == "" {
		return "", fmt.Errorf("%w: dual writes need a schema version for %q", model.ErrConfiguration, r.alias)
	}
	stamp := r.opts.Now().UTC().Format(suffixLayout)
	switch {
	case version == "":
		return r.alias + "_" + stamp, nil
	case r.out.Forced:
		return r.alias + "_" + version + "_" + stamp, nil
	default:
		return r.alias + "_" + version, nil
	}
}

func (r *run) cutover(ctx context.Context, view remoteView) error {
	if err := r.advance(ctx, eventProvision); err != nil {
		return err
	}
	newName, err := r.physicalName()
	if err != nil {
		return err
	}
	r.out.NewCollection = newName
	if _, err := r.backend.CreateCollection(ctx, r.desired.Payload(newName)); err != nil {
		if typesense.IsConflict(err) {
			return fmt.Errorf("%w: %q was left by an interrupted cutover; delete it or bump the version: %w",
				model.ErrCollectionExists, newName, err)
		}
		return fmt.Errorf("create collection %q: %w", newName, err)
	}
	r.log.Info().Str("alias", r.alias).Str("collection", newName).Str("state", StateProvisioning).Msg("collection created")

	if err := r.advance(ctx, eventDualWrite); err != nil {
		return err
	}
	if err := r.dual.Enable(ctx, r.alias, view.current, newName); err != nil {
		return err
	}

	if err := r.advance(ctx, eventReindex); err != nil {
		return err
	}
	n, err := r.reindexer.Reindex(ctx, r.model, newName)
	r.out.Reindexed = n
	if err != nil {
		return err
	}

	if err := r.advance(ctx, eventSwing); err != nil {
		return err
	}
	if view.legacy {
		// an alias cannot be bound while a collection holds its name
		if err := r.backend.DeleteCollection(ctx, r.alias); err != nil && !typesense.IsNotFound(err) {
			return fmt.Errorf("delete legacy collection %q: %w", r.alias, err)
		}
		r.log.Info().Str("alias", r.alias).Str("collection", r.alias).Str("state", StateSwinging).Msg("legacy collection deleted")
	}
	if _, err := r.backend.UpsertAlias(ctx, r.alias, newName); err != nil {
		return fmt.Errorf("upsert alias %q: %w", r.alias, err)
	}
	r.log.Info().Str("alias", r.alias).Str("collection", newName).Str("state", StateSwinging).Msg("alias swung")

	if err := r.advance(ctx, eventDrain); err != nil {
		return err
	}
	if old := view.current; old != "" && old != r.alias && old != newName {
		if err := r.backend.DeleteCollection(ctx, old); err != nil && !typesense.IsNotFound(err) {
			return fmt.Errorf("delete collection %q: %w", old, err)
		}
		r.log.Info().Str("alias", r.alias).Str("collection", old).Str("state", StateDraining).Msg("old collection deleted")
	}
	if err := r.dual.Disable(ctx, r.alias); err != nil {
		return err
	}
	return r.advance(ctx, eventFinish)
}
