package opsserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ympact/typesense-sync/internal/differ"
	"github.com/ympact/typesense-sync/internal/migrate"
)

type fakeHealth struct {
	up         bool
	components map[string]bool
}

func (f fakeHealth) IsHealthy() bool             { return f.up }
func (f fakeHealth) Components() map[string]bool { return f.components }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthz(t *testing.T) {
	r := NewRouter(fakeHealth{up: false, components: map[string]bool{"typesense": false, "store": true}}, nil, zerolog.Nop())

	rr := get(t, r, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.False(t, body.Components["typesense"])

	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/readyz").Code)
}

func TestReadyz(t *testing.T) {
	r := NewRouter(fakeHealth{up: true}, nil, zerolog.Nop())
	assert.Equal(t, http.StatusOK, get(t, r, "/readyz").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/schemas").Code)
}

func TestMetrics(t *testing.T) {
	r := NewRouter(fakeHealth{up: true}, nil, zerolog.Nop())
	rr := get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestSchemas(t *testing.T) {
	status := func(context.Context) ([]*migrate.SchemaStatus, error) {
		return []*migrate.SchemaStatus{
			{Alias: "books", Collection: "books_v1", AliasBound: true, Documents: 3,
				RemoteVersion: "v1", DesiredVersion: "v2", Decision: differ.NeedsFullCutover, Status: migrate.StatusOutdated},
			{Alias: "authors", Decision: differ.NeedsCreate, Status: migrate.StatusNotAvailable},
		}, nil
	}
	rr := get(t, NewRouter(fakeHealth{up: true}, status, zerolog.Nop()), "/schemas")
	require.Equal(t, http.StatusOK, rr.Code)

	var body []schemaStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "books_v1", body[0].Collection)
	assert.Equal(t, "outdated", body[0].Status)
	assert.Equal(t, differ.NeedsFullCutover.String(), body[0].Decision)
	assert.Equal(t, "not_available", body[1].Status)
}

func TestSchemas_Error(t *testing.T) {
	status := func(context.Context) ([]*migrate.SchemaStatus, error) { return nil, errors.New("unreachable") }
	rr := get(t, NewRouter(fakeHealth{up: true}, status, zerolog.Nop()), "/schemas")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestRecover(t *testing.T) {
	status := func(context.Context) ([]*migrate.SchemaStatus, error) { panic("boom") }
	rr := get(t, NewRouter(fakeHealth{up: true}, status, zerolog.Nop()), "/schemas")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
