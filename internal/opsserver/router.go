// Package opsserver exposes health, metrics and schema status over HTTP for
// long-running scoutctl processes.
package opsserver

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/migrate"
)

// HealthSource reports service and per-dependency health.
type HealthSource interface {
	IsHealthy() bool
	Components() map[string]bool
}

// StatusSource lists the schema status of every registered model.
type StatusSource func(ctx context.Context) ([]*migrate.SchemaStatus, error)

type handler struct {
	health HealthSource
	status StatusSource
	log    zerolog.Logger
}

// NewRouter wires the ops endpoints. A nil status disables /schemas.
func NewRouter(health HealthSource, status StatusSource, log zerolog.Logger) *mux.Router {
	h := &handler{health: health, status: status, log: log}
	root := mux.NewRouter()
	root.Use(h.recover)

	root.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	root.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if status != nil {
		root.HandleFunc("/schemas", h.schemas).Methods(http.MethodGet)
	}
	return root
}

// healthz always answers 200; the body says whether dependencies are up.
func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	status := "unhealthy"
	if h.health.IsHealthy() {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": h.health.Components(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) readyz(w http.ResponseWriter, _ *http.Request) {
	if !h.health.IsHealthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type schemaStatus struct {
	Alias          string   `json:"alias"`
	Collection     string   `json:"collection,omitempty"`
	AliasBound     bool     `json:"alias_bound"`
	Legacy         bool     `json:"legacy"`
	Documents      int64    `json:"documents"`
	RemoteVersion  string   `json:"remote_version,omitempty"`
	DesiredVersion string   `json:"desired_version,omitempty"`
	Decision       string   `json:"decision"`
	Status         string   `json:"status"`
	Drift          string   `json:"drift,omitempty"`
	Immutable      []string `json:"immutable,omitempty"`
}

func (h *handler) schemas(w http.ResponseWriter, r *http.Request) {
	list, err := h.status(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("schema status failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	out := make([]schemaStatus, 0, len(list))
	for _, s := range list {
		row := schemaStatus{
			Alias:          s.Alias,
			Collection:     s.Collection,
			AliasBound:     s.AliasBound,
			Legacy:         s.Legacy,
			Documents:      s.Documents,
			RemoteVersion:  s.RemoteVersion,
			DesiredVersion: s.DesiredVersion,
			Decision:       s.Decision.String(),
			Status:         string(s.Status),
			Immutable:      s.Drift.Immutable,
		}
		if !s.Drift.Empty() {
			row.Drift = s.Drift.String()
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("url", r.URL.String()).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
