// Package store reads source-of-truth rows out of the relational database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/ympact/typesense-sync/internal/store/postgres"
	"github.com/ympact/typesense-sync/internal/store/sqlite"
)

var numberedParam = regexp.MustCompile(`\$(\d+)`)

// Dialect is the SQL flavour of a connection.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Rebind rewrites $n placeholders for the dialect. SQLite accepts ?n with
// the same numbering.
func (d Dialect) Rebind(query string) string {
	if d != SQLite {
		return query
	}
	return numberedParam.ReplaceAllString(query, "?$1")
}

// Placeholders returns n placeholders numbered from start, comma separated.
func (d Dialect) Placeholders(start, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "$%d", start+i)
	}
	return d.Rebind(sb.String())
}

// DB is a connection tagged with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects with the configured driver: a DSN for postgres, a file
// path for sqlite.
func Open(driver, source string) (*DB, error) {
	switch Dialect(driver) {
	case Postgres:
		db, err := postgres.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &DB{DB: db, Dialect: Postgres}, nil
	case SQLite:
		db, err := sqlite.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", source, err)
		}
		return &DB{DB: db, Dialect: SQLite}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// HealthPing implements health.HealthPinger.
func (d *DB) HealthPing(ctx context.Context) error {
	return d.PingContext(ctx)
}
