package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ympact/typesense-sync/internal/differ"
	"github.com/ympact/typesense-sync/internal/searchable"
)

// Status classifies a remote collection against its model's schema.
type Status string

const (
	// StatusOutdated means the next migration run would do work.
	StatusOutdated Status = "outdated"
	// StatusBase means the collection matches the schema.
	StatusBase Status = "base"
	// StatusCustomized means the collection was changed by hand while its
	// version still matches, so no run would touch it.
	StatusCustomized   Status = "customized"
	StatusNotAvailable Status = "not_available"
)

// SchemaStatus describes the live collection behind one model.
type SchemaStatus struct {
	Alias string
	// Collection is the physical collection serving the alias, "" if none.
	Collection     string
	AliasBound     bool
	Legacy         bool
	Documents      int64
	CreatedAt      time.Time
	RemoteVersion  string
	DesiredVersion string
	Decision       differ.Decision
	Status         Status
	Drift          differ.Patch
}

// Status reports m's collection without changing anything.
func (m *Manager) Status(ctx context.Context, sm searchable.Model) (*SchemaStatus, error) {
	desired, err := sm.Schema()
	if err != nil {
		return nil, fmt.Errorf("schema for %q: %w", sm.SearchableAs(), err)
	}
	snap, err := m.resolver.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	name := sm.SearchableAs()
	v := viewOf(snap, name)

	st := &SchemaStatus{
		Alias:          name,
		Collection:     v.current,
		AliasBound:     snap.AliasExists(name),
		Legacy:         v.legacy,
		DesiredVersion: desired.Version(),
		Decision:       differ.Decide(v.remote, desired, m.opts.DualWrites, m.opts.Comparator),
	}
	if v.remote == nil {
		st.Status = StatusNotAvailable
		return st, nil
	}
	st.Documents = v.remote.NumDocuments
	st.CreatedAt = time.Unix(v.remote.CreatedAt, 0).UTC()
	st.RemoteVersion = v.remote.Version()
	st.Drift = differ.Diff(v.remote, desired)

	switch {
	case !st.Decision.Skip():
		st.Status = StatusOutdated
	case !st.Drift.Empty():
		st.Status = StatusCustomized
	default:
		st.Status = StatusBase
	}
	return st, nil
}

// Result is one model's line in a batch report.
type Result struct {
	Alias   string
	Outcome *Outcome
	Err     error
}

// Report collects per-model results of a batch.
type Report struct {
	Results []Result
}

// Failed returns the results that carry an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins every per-model error, nil when all succeeded.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", res.Alias, res.Err))
	}
	return errors.Join(errs...)
}

// UpdateAll migrates every model in order. A failing model is logged and
// reported and the rest still run.
func (m *Manager) UpdateAll(ctx context.Context, models []searchable.Model, force bool) (Report, error) {
	var rep Report
	for _, sm := range models {
		if err := ctx.Err(); err != nil {
			rep.Results = append(rep.Results, Result{Alias: sm.SearchableAs(), Err: err})
			continue
		}
		out, err := m.Migrate(ctx, sm, force)
		if err != nil {
			m.log.Error().Err(err).Str("alias", sm.SearchableAs()).Msg("schema update failed")
		}
		rep.Results = append(rep.Results, Result{Alias: sm.SearchableAs(), Outcome: out, Err: err})
	}
	return rep, rep.Err()
}
