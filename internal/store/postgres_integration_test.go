//go:build integration

package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ympact/typesense-sync/internal/kv"
	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/store"
)

var (
	pgContainer testcontainers.Container
	pgDSN       string
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	if err := setupPostgres(ctx); err != nil {
		fmt.Printf("Failed to setup postgres: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	if err := pgContainer.Terminate(ctx); err != nil {
		fmt.Printf("Failed to terminate postgres: %v\n", err)
	}
	os.Exit(code)
}

func setupPostgres(ctx context.Context) error {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "sync",
			"POSTGRES_PASSWORD": "sync",
			"POSTGRES_DB":       "sync",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	pgContainer = c

	host, err := c.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := c.MappedPort(ctx, "5432")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	pgDSN = fmt.Sprintf("postgres://sync:sync@%s:%s/sync?sslmode=disable", host, port.Port())
	return nil
}

func openPG(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open("postgres", pgDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.HealthPing(context.Background()))
	return db
}

func TestPostgres_TableStreamAndExisting(t *testing.T) {
	ctx := context.Background()
	db := openPG(t)

	_, err := db.Exec(`DROP TABLE IF EXISTS books`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE books (id BIGINT PRIMARY KEY, title TEXT NOT NULL, archived BOOLEAN NOT NULL DEFAULT false)`)
	require.NoError(t, err)
	for i := 1; i <= 25; i++ {
		_, err := db.Exec(`INSERT INTO books (id, title, archived) VALUES ($1, $2, $3)`, i, fmt.Sprintf("Book %d", i), i%5 == 0)
		require.NoError(t, err)
	}

	tbl, err := store.NewTable(db, store.TableSpec{Table: "books", IntKey: true, Where: "archived = false"})
	require.NoError(t, err)

	var batches []int
	require.NoError(t, tbl.Stream(ctx, 10, func(docs []model.Document) error {
		batches = append(batches, len(docs))
		return nil
	}))
	assert.Equal(t, []int{10, 10}, batches)

	got, err := tbl.Existing(ctx, []string{"1", "5", "7", "99", "not-a-number"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "7"}, got)
}

func TestPostgres_StateStore(t *testing.T) {
	ctx := context.Background()
	db := openPG(t)

	now := time.Now()
	s := kv.NewSQLStore(db, func() time.Time { return now })
	require.NoError(t, s.EnsureSchema(ctx))

	ok, err := s.PutIfAbsent(ctx, "typesense_migrating.books", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.PutIfAbsent(ctx, "typesense_migrating.books", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = s.PutIfAbsent(ctx, "typesense_migrating.books", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease can be taken over")

	removed, err := s.DeleteIf(ctx, "typesense_migrating.books", "a")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, s.Put(ctx, "typesense_updating.books", "books_v1,books_v2", time.Second))
	now = now.Add(time.Minute)
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	_, found, err := s.Get(ctx, "typesense_updating.books")
	require.NoError(t, err)
	assert.False(t, found)
}
