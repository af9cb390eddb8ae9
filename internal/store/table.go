package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ympact/typesense-sync/internal/model"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// maxInList bounds the ids sent in one IN (...) lookup.
const maxInList = 500

// TableSpec describes how rows of one table become search documents.
type TableSpec struct {
	Table string
	// Key is the primary key column. Its value becomes the document id.
	Key string
	// IntKey marks a numeric primary key; lookups convert ids before binding.
	IntKey bool
	// Columns are selected verbatim ("title", "price AS amount").
	// Empty selects every column.
	Columns []string
	// Where is an optional trusted filter ANDed into every query.
	Where string
}

// Table streams rows of one table as documents, paging by primary key.
type Table struct {
	db   *DB
	spec TableSpec
}

// NewTable validates spec against db.
func NewTable(db *DB, spec TableSpec) (*Table, error) {
	if !identPattern.MatchString(spec.Table) {
		return nil, fmt.Errorf("%w: invalid table name %q", model.ErrConfiguration, spec.Table)
	}
	if spec.Key == "" {
		spec.Key = "id"
	}
	if !identPattern.MatchString(spec.Key) {
		return nil, fmt.Errorf("%w: invalid key column %q", model.ErrConfiguration, spec.Key)
	}
	return &Table{db: db, spec: spec}, nil
}

func (t *Table) selectList() string {
	cols := "*"
	if len(t.spec.Columns) > 0 {
		cols = strings.Join(t.spec.Columns, ", ")
	}
	return fmt.Sprintf("%s AS __key, %s", t.spec.Key, cols)
}

func (t *Table) filter(cond string) string {
	var parts []string
	if t.spec.Where != "" {
		parts = append(parts, "("+t.spec.Where+")")
	}
	if cond != "" {
		parts = append(parts, cond)
	}
	if len(parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

// Stream reads the table in key order, batchSize rows at a time, and calls
// fn with each batch. Only one batch is held in memory.
func (t *Table) Stream(ctx context.Context, batchSize int, fn func([]model.Document) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	var last any
	for {
		var (
			query string
			args  []any
		)
		if last == nil {
			query = fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT %d",
				t.selectList(), t.spec.Table, t.filter(""), t.spec.Key, batchSize)
		} else {
			query = fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT %d",
				t.selectList(), t.spec.Table, t.filter(t.spec.Key+" > $1"), t.spec.Key, batchSize)
			args = []any{last}
		}

		docs, lastKey, err := t.page(ctx, t.db.Dialect.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("read %s: %w", t.spec.Table, err)
		}
		if len(docs) == 0 {
			return nil
		}
		if err := fn(docs); err != nil {
			return err
		}
		if len(docs) < batchSize {
			return nil
		}
		last = lastKey
	}
}

func (t *Table) page(ctx context.Context, query string, args ...any) ([]model.Document, any, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var (
		docs []model.Document
		last any
	)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		doc := make(model.Document, len(cols))
		for i, c := range cols {
			if c == "__key" {
				continue
			}
			if v := normalise(vals[i]); v != nil {
				doc[c] = v
			}
		}
		last = normalise(vals[0])
		doc["id"] = model.IDString(last)
		docs = append(docs, doc)
	}
	return docs, last, rows.Err()
}

// normalise maps driver values onto what Typesense accepts.
func normalise(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Unix()
	default:
		return v
	}
}

// Existing returns the subset of ids present in the table.
func (t *Table) Existing(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	for start := 0; start < len(ids); start += maxInList {
		end := start + maxInList
		if end > len(ids) {
			end = len(ids)
		}

		args := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			if !t.spec.IntKey {
				args = append(args, id)
				continue
			}
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				// a non-numeric id cannot match a numeric key
				continue
			}
			args = append(args, n)
		}
		if len(args) == 0 {
			continue
		}

		query := fmt.Sprintf("SELECT %s FROM %s%s", t.spec.Key, t.spec.Table,
			t.filter(fmt.Sprintf("%s IN (%s)", t.spec.Key, t.db.Dialect.Placeholders(1, len(args)))))
		got, err := t.keys(ctx, query, args)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", t.spec.Table, err)
		}
		found = append(found, got...)
	}
	return found, nil
}

func (t *Table) keys(ctx context.Context, query string, args []any) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, model.IDString(normalise(v)))
	}
	return out, rows.Err()
}

// Count returns the number of rows Stream would visit.
func (t *Table) Count(ctx context.Context) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.spec.Table, t.filter(""))
	if err := t.db.QueryRowContext(ctx, q).Scan(&n); err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("count %s: %w", t.spec.Table, err)
	}
	return n, nil
}
