package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/ympact/typesense-sync/internal/factory"
	"github.com/ympact/typesense-sync/internal/migrate"
	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/searchable"
)

func selectModels(app *factory.App, names []string) ([]searchable.Model, error) {
	if len(names) == 0 {
		return app.Models.All(), nil
	}
	return app.Models.Select(names...)
}

func runUpdateSchemas(ctx context.Context, app *factory.App, names []string, force bool, out io.Writer) error {
	models, err := selectModels(app, names)
	if err != nil {
		return err
	}
	rep, err := app.Migrator.UpdateAll(ctx, models, force)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tDECISION\tCOLLECTION\tDOCUMENTS\tRESULT")
	for _, r := range rep.Results {
		decision, collection, docs := "-", "-", "-"
		if o := r.Outcome; o != nil {
			decision = o.Decision.String()
			if o.Forced {
				decision += " (forced)"
			}
			collection = o.OldCollection
			if o.NewCollection != "" {
				collection = o.NewCollection
				docs = fmt.Sprint(o.Reindexed)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Alias, decision, orDash(collection), docs, result(r.Err))
	}
	_ = w.Flush()
	return err
}

func runStatus(ctx context.Context, app *factory.App, names []string, out io.Writer) error {
	models, err := selectModels(app, names)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSTATUS\tCOLLECTION\tVERSION\tDESIRED\tDOCUMENTS\tROWS\tDRIFT")
	var errs []error
	for _, m := range models {
		st, err := app.Migrator.Status(ctx, m)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.SearchableAs(), err))
			fmt.Fprintf(w, "%s\terror\t-\t-\t-\t-\t-\t%v\n", m.SearchableAs(), err)
			continue
		}
		collection := st.Collection
		if st.Legacy && !st.AliasBound {
			collection += " (raw)"
		}
		drift := "-"
		if !st.Drift.Empty() {
			drift = st.Drift.String()
		}
		rows := "-"
		if c, ok := m.Records().(searchable.RowCounter); ok {
			n, err := c.Count(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", m.SearchableAs(), err))
				rows = "?"
			} else {
				rows = strconv.FormatInt(n, 10)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n", st.Alias, st.Status, orDash(collection),
			orDash(st.RemoteVersion), orDash(st.DesiredVersion), st.Documents, rows, drift)
	}
	_ = w.Flush()
	return errors.Join(errs...)
}

// runImport streams each model's rows through the write path, reaching both
// collections while a cutover is in flight.
func runImport(ctx context.Context, app *factory.App, names []string, batchSize int, out io.Writer) error {
	models, err := selectModels(app, names)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range models {
		n := 0
		err := m.Records().Stream(ctx, batchSize, func(batch []model.Document) error {
			if err := app.Engine.Update(ctx, m, batch); err != nil {
				return err
			}
			n += len(batch)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.SearchableAs(), err))
		}
		fmt.Fprintf(out, "%s: %d rows imported, %s\n", m.SearchableAs(), n, result(err))
	}
	return errors.Join(errs...)
}

func runFindOrphans(ctx context.Context, app *factory.App, names []string, out io.Writer) error {
	models, err := selectModels(app, names)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range models {
		ids, err := app.Orphans.FindOrphans(ctx, m)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.SearchableAs(), err))
			continue
		}
		fmt.Fprintf(out, "%s: %d orphans\n", m.SearchableAs(), len(ids))
		for _, id := range ids {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}
	return errors.Join(errs...)
}

func runRemoveOrphans(ctx context.Context, app *factory.App, names []string, out io.Writer) error {
	models, err := selectModels(app, names)
	if err != nil {
		return err
	}
	results, err := app.Orphans.RemoveAll(ctx, models)
	for _, r := range results {
		fmt.Fprintf(out, "%s: %d found, %d removed, %s\n", r.Alias, r.Found, r.Removed, result(r.Err))
	}
	return err
}

func runCleanupLegacy(ctx context.Context, app *factory.App, names []string, out io.Writer) error {
	models, err := selectModels(app, names)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range models {
		deleted, err := app.Migrator.CleanupLegacyCollection(ctx, m)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", m.SearchableAs(), err))
			fmt.Fprintf(out, "%s: %v\n", m.SearchableAs(), err)
		case deleted:
			fmt.Fprintf(out, "%s: legacy collection deleted\n", m.SearchableAs())
		default:
			fmt.Fprintf(out, "%s: nothing to clean up\n", m.SearchableAs())
		}
	}
	return errors.Join(errs...)
}

// statusLister adapts the migrator to the ops server's status endpoint.
func statusLister(app *factory.App) func(ctx context.Context) ([]*migrate.SchemaStatus, error) {
	return func(ctx context.Context) ([]*migrate.SchemaStatus, error) {
		models := app.Models.All()
		out := make([]*migrate.SchemaStatus, 0, len(models))
		for _, m := range models {
			st, err := app.Migrator.Status(ctx, m)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", m.SearchableAs(), err)
			}
			out = append(out, st)
		}
		return out, nil
	}
}

func result(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
