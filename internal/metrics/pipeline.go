package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline holds the fetcher and indexer progress metrics.
type Pipeline struct {
	DownloadBytes prometheus.Counter
	RowsFetched   prometheus.Counter

	DocsIndexed   *prometheus.CounterVec
	DocsFailed    *prometheus.CounterVec
	BatchesTotal  *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
	IndexDocs     *prometheus.GaugeVec
}

// NewPipeline creates the pipeline metrics and registers them with reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded from the dataset source",
		}),

		RowsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_fetched_total",
			Help:      "Total records written to the sampled dataset",
		}),

		DocsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docs_indexed_total",
			Help:      "Total documents accepted by the search service",
		}, []string{"index"}),

		DocsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docs_failed_total",
			Help:      "Total documents rejected by the search service",
		}, []string{"index"}),

		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_batches_total",
			Help:      "Total bulk requests sent",
		}, []string{"index"}),

		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_batch_duration_seconds",
			Help:      "Bulk request duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"index"}),

		IndexDocs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_docs",
			Help:      "Number of searchable documents in the index after the run",
		}, []string{"index"}),
	}

	reg.MustRegister(
		m.DownloadBytes, m.RowsFetched,
		m.DocsIndexed, m.DocsFailed,
		m.BatchesTotal, m.BatchDuration,
		m.IndexDocs,
	)

	return m
}

// NewNopPipeline returns pipeline metrics registered nowhere.
func NewNopPipeline() *Pipeline {
	return NewPipeline(prometheus.NewRegistry())
}
