package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics exported by an embedded engine
// instance.
type Metrics struct {
	// Vector operation metrics
	VectorsInserted prometheus.Counter
	VectorsDeleted  prometheus.Counter
	VectorsUpdated  prometheus.Counter
	OperationErrors *prometheus.CounterVec

	// Search metrics
	SearchLatency    prometheus.Histogram
	SearchRecall     prometheus.Histogram
	SearchResultSize prometheus.Histogram

	// HNSW index metrics
	IndexSize     prometheus.Gauge
	IndexMaxLayer prometheus.Gauge

	// Segment store metrics
	SegmentCount    prometheus.Gauge
	SegmentBytes    prometheus.Gauge
	MemtableRecords prometheus.Gauge

	// Compaction metrics
	CompactionsTotal            prometheus.Counter
	CompactionDuration          prometheus.Histogram
	CompactionDroppedTombstones prometheus.Counter
}

// NewMetrics returns the process-wide metric set. The first call
// creates all Prometheus metrics and registers them with the default
// registry; later calls return that same set.
func NewMetrics() *Metrics {
	return sharedMetrics()
}

var sharedMetrics = sync.OnceValue(newMetrics)

func newMetrics() *Metrics {
	return &Metrics{
		VectorsInserted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_vectors_inserted_total",
				Help: "Total number of vectors inserted",
			},
		),
		VectorsDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_vectors_deleted_total",
				Help: "Total number of vectors deleted",
			},
		),
		VectorsUpdated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_vectors_updated_total",
				Help: "Total number of vectors updated",
			},
		),
		OperationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vectordb_operation_errors_total",
				Help: "Total number of operation errors by operation and error kind",
			},
			[]string{"operation", "error_kind"},
		),

		SearchLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_search_latency_seconds",
				Help:    "Search latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SearchRecall: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_search_recall",
				Help:    "Measured search recall (0-1) against ground truth, when computed",
				Buckets: []float64{.8, .85, .9, .92, .94, .95, .96, .97, .98, .99, 1.0},
			},
		),
		SearchResultSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_search_result_size",
				Help:    "Number of results returned by search",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			},
		),

		IndexSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectordb_hnsw_index_size",
				Help: "Number of live vectors in the HNSW graph",
			},
		),
		IndexMaxLayer: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectordb_hnsw_max_layer",
				Help: "Maximum layer currently present in the HNSW graph",
			},
		),

		SegmentCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectordb_segment_count",
				Help: "Number of sealed segments on disk",
			},
		),
		SegmentBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectordb_segment_bytes",
				Help: "Total bytes occupied by sealed segments",
			},
		),
		MemtableRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectordb_memtable_records",
				Help: "Number of records currently buffered in the memtable",
			},
		),

		CompactionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_compactions_total",
				Help: "Total number of compaction merges performed",
			},
		),
		CompactionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_compaction_duration_seconds",
				Help:    "Duration of a compaction merge",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
		),
		CompactionDroppedTombstones: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_compaction_dropped_tombstones_total",
				Help: "Total number of tombstoned records dropped during compaction",
			},
		),
	}
}

// RecordInsert records a vector insertion.
func (m *Metrics) RecordInsert() {
	m.VectorsInserted.Inc()
}

// RecordDelete records a vector deletion.
func (m *Metrics) RecordDelete() {
	m.VectorsDeleted.Inc()
}

// RecordUpdate records a vector update.
func (m *Metrics) RecordUpdate() {
	m.VectorsUpdated.Inc()
}

// RecordError records an operation error by kind.
func (m *Metrics) RecordError(operation, errorKind string) {
	m.OperationErrors.WithLabelValues(operation, errorKind).Inc()
}

// RecordSearch records a search operation's latency and result size.
func (m *Metrics) RecordSearch(duration time.Duration, resultSize int) {
	m.SearchLatency.Observe(duration.Seconds())
	m.SearchResultSize.Observe(float64(resultSize))
}

// RecordRecall records a measured recall value.
func (m *Metrics) RecordRecall(recall float32) {
	m.SearchRecall.Observe(float64(recall))
}

// UpdateIndexStats updates the HNSW gauges.
func (m *Metrics) UpdateIndexStats(size int64, maxLayer int) {
	m.IndexSize.Set(float64(size))
	m.IndexMaxLayer.Set(float64(maxLayer))
}

// UpdateSegmentStats updates the segment store gauges.
func (m *Metrics) UpdateSegmentStats(segmentCount int, segmentBytes int64, memtableRecords int) {
	m.SegmentCount.Set(float64(segmentCount))
	m.SegmentBytes.Set(float64(segmentBytes))
	m.MemtableRecords.Set(float64(memtableRecords))
}

// RecordCompaction records a completed compaction merge.
func (m *Metrics) RecordCompaction(duration time.Duration, droppedTombstones int) {
	m.CompactionsTotal.Inc()
	m.CompactionDuration.Observe(duration.Seconds())
	m.CompactionDroppedTombstones.Add(float64(droppedTombstones))
}
