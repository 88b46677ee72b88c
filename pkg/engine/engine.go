// Package engine assembles the segment store, the HNSW index, the PQ
// codec, and the compactor into the single façade an embedder talks
// to: Store, Get, Delete, Search, TrainCompression, MaybeCompact,
// Flush, Close. It owns the sequence counter, the memtable, the
// manifest handle, and the index, and serializes writes under a
// single-writer discipline.
//
// Grounded on the teacher's pkg/api/grpc/server.go: a façade holding
// one index (there, one per namespace) behind a guard, generalized
// here to one store+index pair per engine instance — multi-tenancy is
// a teacher feature with no place in this system's scope.
package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/vectordb/internal/quantization"
	"github.com/therealutkarshpriyadarshi/vectordb/internal/store"
	"github.com/therealutkarshpriyadarshi/vectordb/pkg/config"
	"github.com/therealutkarshpriyadarshi/vectordb/pkg/distance"
	"github.com/therealutkarshpriyadarshi/vectordb/pkg/hnsw"
	"github.com/therealutkarshpriyadarshi/vectordb/pkg/observability"
)

// Engine is a single embedded vector database instance: one store,
// one HNSW index, one active codec, one compactor.
type Engine struct {
	cfg    *config.Config
	st     *store.Store
	index  *hnsw.Index
	metric distance.Metric

	compactor *store.Compactor

	metrics *observability.Metrics
	logger  *observability.Logger

	hasNorms bool
}

// Open opens (or creates) an engine instance rooted at cfg.Store.DataDir.
// It replays the store's sealed segments and memtable into a fresh
// in-memory HNSW index — the index itself is not persisted, only the
// vectors it is built from.
func Open(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	metric, ok := distance.ParseMetric(cfg.Store.Metric)
	if !ok {
		return nil, fmt.Errorf("%w: unknown metric %q", store.ErrInvalidShape, cfg.Store.Metric)
	}

	st, err := store.Open(cfg.Store.DataDir, store.Options{
		Dim:           cfg.Store.Dimensions,
		MaxMemRecords: cfg.Store.MaxMemRecords,
		MaxMemBytes:   cfg.Store.MaxMemBytes,
		DecodeCodec:   decodePQCodec(metric),
	})
	if err != nil {
		return nil, err
	}

	indexCfg := hnsw.DefaultConfig()
	indexCfg.M = cfg.HNSW.M
	indexCfg.EfConstruction = cfg.HNSW.EfConstruction
	indexCfg.Metric = metric
	index := hnsw.New(indexCfg)

	e := &Engine{
		cfg:     cfg,
		st:      st,
		index:   index,
		metric:  metric,
		metrics: observability.NewMetrics(),
		logger:  observability.NewDefaultLogger().WithField("component", "engine"),
	}
	e.compactor = store.NewCompactor(st, store.CompactorOptions{
		MinSegments:  cfg.Compaction.MinSegments,
		TriggerRate:  triggerRate(cfg.Compaction.TriggerIntervalMs),
		TriggerBurst: 1,
	})

	if err := e.rebuildIndex(); err != nil {
		st.Close()
		return nil, err
	}

	return e, nil
}

func (e *Engine) rebuildIndex() error {
	mem, segs := e.st.Snapshot()
	defer func() {
		for _, seg := range segs {
			e.st.ReleaseSegment(seg)
		}
	}()

	latest := make(map[string]*store.Record)
	for _, seg := range segs {
		records, err := seg.Records(e.st.CodecForSegment(seg))
		if err != nil {
			e.logger.Warnf("skipping unreadable segment during rebuild: %v", err)
			continue
		}
		for _, rec := range records {
			mergeLatest(latest, rec)
		}
	}
	for _, rec := range mem.Sorted() {
		mergeLatest(latest, rec)
	}

	for _, rec := range latest {
		if rec.Tombstone || rec.Vector == nil {
			continue
		}
		if _, err := e.index.Insert(rec.ID, rec.Vector); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
	}
	return nil
}

// decodePQCodec reconstructs a trained product quantizer from its
// persisted SDBC codebook — the store's hook for reloading whatever
// codec a prior TrainCompression installed. The codebook itself
// carries no metric, so the reloaded quantizer is reconfigured with
// the engine's active metric, matching what TrainCompression used to
// train it in the first place.
func decodePQCodec(metric distance.Metric) func([]byte) (store.Codec, error) {
	return func(data []byte) (store.Codec, error) {
		qcfg := quantization.DefaultConfig()
		qcfg.Metric = metric
		pq := quantization.NewProductQuantizerWithConfig(0, 0, qcfg)
		if err := pq.Deserialize(data); err != nil {
			return nil, err
		}
		return pq, nil
	}
}

func mergeLatest(latest map[string]*store.Record, rec *store.Record) {
	key := string(rec.ID)
	if existing, ok := latest[key]; !ok || rec.Sequence > existing.Sequence {
		latest[key] = rec
	}
}

// triggerRate converts the configured compaction pacing interval into
// a token-bucket rate, unlimited when no interval is configured.
func triggerRate(intervalMs int) rate.Limit {
	if intervalMs <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Duration(intervalMs) * time.Millisecond)
}

// Store writes (or overwrites) the vector for id. Single-writer
// discipline: a second concurrent Store/Delete/TrainCompression
// returns ErrConcurrentModification rather than blocking.
func (e *Engine) Store(id []byte, vector []float32) error {
	if err := e.st.TryLockWriter(); err != nil {
		e.metrics.RecordError("store", "concurrent_modification")
		return err
	}
	defer e.st.UnlockWriter()

	if err := e.st.Put(id, vector); err != nil {
		e.metrics.RecordError("store", "invalid_shape")
		return err
	}

	if _, ok := e.index.GetVector(id); ok {
		if err := e.index.Update(id, vector); err != nil {
			return fmt.Errorf("update index: %w", err)
		}
	} else {
		if _, err := e.index.Insert(id, vector); err != nil {
			return fmt.Errorf("insert index: %w", err)
		}
	}

	e.metrics.RecordInsert()
	return e.autoSealIfNeeded()
}

// autoSealIfNeeded seals the memtable once it crosses its configured
// record or byte threshold, so a long-running embedder that never
// calls Flush explicitly still bounds memtable growth.
func (e *Engine) autoSealIfNeeded() error {
	if !e.st.ExceedsMemThreshold() {
		return nil
	}
	_, err := e.st.Seal()
	return err
}

// Get returns the current vector for id.
func (e *Engine) Get(id []byte) ([]float32, error) {
	rec, err := e.st.Get(id)
	if err != nil {
		e.metrics.RecordError("get", "not_found")
		return nil, err
	}
	return rec.Vector, nil
}

// Delete tombstones id. Deleting an absent id is not an error.
func (e *Engine) Delete(id []byte) error {
	if err := e.st.TryLockWriter(); err != nil {
		e.metrics.RecordError("delete", "concurrent_modification")
		return err
	}
	defer e.st.UnlockWriter()

	if err := e.st.Delete(id); err != nil {
		return err
	}
	_ = e.index.Delete(id) // absent from the index is not an error here
	e.metrics.RecordDelete()
	return e.autoSealIfNeeded()
}

// Search returns the k approximate nearest neighbors of query. ef
// defaults to cfg.HNSW.DefaultEfSearch when zero.
func (e *Engine) Search(query []float32, k int, ef int) (*hnsw.SearchResult, error) {
	if ef <= 0 {
		ef = e.cfg.HNSW.DefaultEfSearch
	}
	start := time.Now()
	result, err := e.index.Search(query, k, ef)
	if err != nil {
		e.metrics.RecordError("search", "invalid_shape")
		return nil, err
	}
	e.metrics.RecordSearch(time.Since(start), len(result.Results))
	return result, nil
}

// TrainCompression trains a product quantization codec from samples
// and installs it as the store's active codec. Subsequent writes
// encode under the new codec; existing segments keep their own codec
// reference until compaction migrates them.
func (e *Engine) TrainCompression(samples [][]float32, numSubvectors, bitsPerCode int) error {
	if err := e.st.TryLockWriter(); err != nil {
		e.metrics.RecordError("train", "concurrent_modification")
		return err
	}
	defer e.st.UnlockWriter()

	qcfg := quantization.DefaultConfig()
	qcfg.Metric = e.metric
	if n := e.cfg.Quantization.TrainingIterations; n > 0 {
		qcfg.NumIterations = n
	}
	pq := quantization.NewProductQuantizerWithConfig(numSubvectors, bitsPerCode, qcfg)
	if err := pq.Train(samples); err != nil {
		e.metrics.RecordError("train", "insufficient_training_data")
		return err
	}

	if err := e.st.SetCodec(pq, !e.metric.Decomposable()); err != nil {
		e.metrics.RecordError("train", "io_error")
		return err
	}
	return nil
}

// MaybeCompact runs one compaction pass if enough sealed segments have
// accumulated. Returns false if no merge was performed.
func (e *Engine) MaybeCompact(ctx context.Context) (bool, error) {
	if err := e.st.TryLockWriter(); err != nil {
		e.metrics.RecordError("compact", "concurrent_modification")
		return false, err
	}
	defer e.st.UnlockWriter()

	start := time.Now()
	ran, err := e.compactor.MaybeCompact(ctx)
	if err != nil {
		e.metrics.RecordError("compact", "io_error")
		return ran, err
	}
	if ran {
		e.metrics.RecordCompaction(time.Since(start), 0)
	}
	return ran, nil
}

// Flush seals any non-empty memtable to a durable segment.
func (e *Engine) Flush() error {
	if err := e.st.TryLockWriter(); err != nil {
		return err
	}
	defer e.st.UnlockWriter()

	_, err := e.st.Seal()
	return err
}

// Stats reports index and segment store sizing, and pushes it into
// the engine's Prometheus gauges.
func (e *Engine) Stats() map[string]interface{} {
	stats := e.index.GetStats()
	e.metrics.UpdateIndexStats(stats.Size, stats.MaxLayer)
	return map[string]interface{}{
		"vector_count": stats.Size,
		"dimensions":   stats.Dimension,
		"max_layer":    stats.MaxLayer,
		"m":            stats.M,
	}
}

// Close seals any non-empty memtable and releases mapped segments.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		return err
	}
	return e.st.Close()
}
