package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_documents_imported_total",
			Help: "Documents submitted to the search engine, by import outcome",
		},
		[]string{"model", "result"},
	)

	documentsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_documents_deleted_total",
			Help: "Documents removed from the search engine",
		},
		[]string{"model"},
	)

	importBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_import_batches_total",
			Help: "Batched imports sent to the search engine",
		},
		[]string{"model"},
	)

	reindexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchsync_reindex_duration_seconds",
			Help:    "Duration of full reindex passes",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"model", "mode", "status"},
	)

	dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_lifecycle_dispatches_total",
			Help: "Index and removal dispatches triggered by record lifecycle events",
		},
		[]string{"model", "operation", "mode"},
	)
)
