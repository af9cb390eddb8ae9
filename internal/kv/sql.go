package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ympact/typesense-sync/internal/store"
)

const stateTable = "typesense_sync_state"

// SQLStore keeps entries in a table of the relational store, so every worker
// process sharing the database sees the same state. expires_at is unix ms,
// 0 for entries without expiry.
type SQLStore struct {
	db  *store.DB
	now Clock
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps db. Call EnsureSchema once before use.
func NewSQLStore(db *store.DB, now Clock) *SQLStore {
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, now: now}
}

// EnsureSchema creates the state table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+stateTable+` (
            state_key TEXT PRIMARY KEY,
            state_value TEXT NOT NULL,
            expires_at BIGINT NOT NULL DEFAULT 0
        )`)
	if err != nil {
		return fmt.Errorf("create %s: %w", stateTable, err)
	}
	return nil
}

func (s *SQLStore) q(query string) string { return s.db.Dialect.Rebind(query) }

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.q(`
        SELECT state_value FROM `+stateTable+`
        WHERE state_key = $1 AND (expires_at = 0 OR expires_at > $2)
    `), key, s.now().UnixMilli()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, s.q(`
        INSERT INTO `+stateTable+` (state_key, state_value, expires_at) VALUES ($1, $2, $3)
        ON CONFLICT (state_key) DO UPDATE SET state_value = excluded.state_value, expires_at = excluded.expires_at
    `), key, value, expiry(s.now(), ttl))
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, s.q(`
        INSERT INTO `+stateTable+` (state_key, state_value, expires_at) VALUES ($1, $2, $3)
        ON CONFLICT (state_key) DO UPDATE SET state_value = excluded.state_value, expires_at = excluded.expires_at
        WHERE `+stateTable+`.expires_at <> 0 AND `+stateTable+`.expires_at <= $4
    `), key, value, expiry(now, ttl), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("put-if-absent %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put-if-absent %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM `+stateTable+` WHERE state_key = $1`), key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) DeleteIf(ctx context.Context, key, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM `+stateTable+` WHERE state_key = $1 AND state_value = $2`), key, value)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, s.q(`
        UPDATE `+stateTable+` SET expires_at = $3
        WHERE state_key = $1 AND state_value = $2 AND (expires_at = 0 OR expires_at > $4)
    `), key, value, expiry(now, ttl), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("extend %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM `+stateTable+` WHERE expires_at <> 0 AND expires_at <= $1`), s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", stateTable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", stateTable, err)
	}
	return int(n), nil
}
