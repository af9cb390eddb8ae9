// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "typesense_sync"

var (
	// MigrationsTotal counts finished migration runs by decision and result.
	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migrate",
			Name:      "runs_total",
			Help:      "Schema migration runs by decision and result.",
		},
		[]string{"alias", "decision", "result"},
	)

	MigrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "migrate",
			Name:      "run_duration_seconds",
			Help:      "Schema migration run latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"alias"},
	)

	LeaseContendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migrate",
			Name:      "lease_contended_total",
			Help:      "Migrations abandoned because another run held the alias lease.",
		},
		[]string{"alias"},
	)

	// ImportsTotal counts write-path imports per physical collection.
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "imports_total",
			Help:      "Document imports issued by the write path.",
		},
		[]string{"alias", "collection", "result"},
	)

	DualWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "dual_writes_total",
			Help:      "Writes fanned out to both collections of an in-flight cutover.",
		},
		[]string{"alias"},
	)

	ReindexedDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reindex",
			Name:      "documents_total",
			Help:      "Documents imported while repopulating a collection.",
		},
		[]string{"alias"},
	)

	OrphansFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orphans",
			Name:      "found_total",
			Help:      "Index documents without a row in the relational store.",
		},
		[]string{"alias"},
	)

	OrphansRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orphans",
			Name:      "removed_total",
			Help:      "Orphan documents deleted from the index.",
		},
		[]string{"alias"},
	)
)
