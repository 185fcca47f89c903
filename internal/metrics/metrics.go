package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencefeed_ingest_items_total",
			Help: "Ingestion outcomes per candidate URL",
		},
		[]string{"status"},
	)
	IngestBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencefeed_ingest_batches_total",
			Help: "Ingestion batches by final status",
		},
		[]string{"status"},
	)
	IngestBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sciencefeed_ingest_batch_duration_seconds",
			Help:    "Wall-clock duration of ingestion batches",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencefeed_resolver_resolutions_total",
			Help: "Shortened URL resolutions by outcome",
		},
		[]string{"outcome"},
	)
	ExtractTiers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencefeed_extract_results_total",
			Help: "Metadata extraction results by the tier that produced them",
		},
		[]string{"tier"},
	)
	SearchTiers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencefeed_retrieval_searches_total",
			Help: "Retrieval searches by the tier that answered",
		},
		[]string{"tier"},
	)
	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sciencefeed_document_chunks_indexed_total",
			Help: "Document chunks written by the indexer",
		},
	)
)

func init() {
	prometheus.MustRegister(
		IngestItems,
		IngestBatches,
		IngestBatchDuration,
		Resolutions,
		ExtractTiers,
		SearchTiers,
		ChunksIndexed,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
