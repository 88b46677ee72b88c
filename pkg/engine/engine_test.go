package engine

import (
	"context"
	"testing"

	"github.com/therealutkarshpriyadarshi/vectordb/pkg/config"
)

func testConfig(t *testing.T, dim int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DataDir = t.TempDir()
	cfg.Store.Dimensions = dim
	cfg.HNSW.M = 8
	cfg.HNSW.EfConstruction = 32
	cfg.HNSW.DefaultEfSearch = 16
	cfg.Compaction.MinSegments = 2
	return cfg
}

func vec(vals ...float32) []float32 { return vals }

func TestOpen(t *testing.T) {
	e, err := Open(testConfig(t, 4))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	if e.metric.String() != "euclidean" {
		t.Errorf("expected default metric euclidean, got %s", e.metric.String())
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, 0)
	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error opening with zero dimensions")
	}
}

func TestOpen_UnknownMetric(t *testing.T) {
	cfg := testConfig(t, 4)
	cfg.Store.Metric = "jaccard"
	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestStoreGetDelete(t *testing.T) {
	e, err := Open(testConfig(t, 3))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	id := []byte("doc-1")
	v := vec(1, 2, 3)

	if err := e.Store(id, v); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := e.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("Get returned %v, want %v", got, v)
	}

	// Overwrite, verify index reflects the update.
	v2 := vec(4, 5, 6)
	if err := e.Store(id, v2); err != nil {
		t.Fatalf("Store (update) failed: %v", err)
	}
	got, err = e.Get(id)
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if got[0] != 4 {
		t.Errorf("expected updated vector, got %v", got)
	}

	if err := e.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := e.Get(id); err == nil {
		t.Error("expected error getting deleted id")
	}

	// Deleting an absent id is not an error.
	if err := e.Delete([]byte("never-existed")); err != nil {
		t.Errorf("Delete of absent id returned error: %v", err)
	}
}

func TestSearch(t *testing.T) {
	e, err := Open(testConfig(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	points := map[string][]float32{
		"a": {0, 0},
		"b": {10, 10},
		"c": {0.5, 0.5},
		"d": {20, 20},
	}
	for id, v := range points {
		if err := e.Store([]byte(id), v); err != nil {
			t.Fatalf("Store(%s) failed: %v", id, err)
		}
	}

	result, err := e.Search(vec(0, 0), 2, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatal("expected at least one search result")
	}
	if string(result.Results[0].ID) != "a" {
		t.Errorf("expected nearest neighbor a, got %s", result.Results[0].ID)
	}
}

func TestTrainCompression(t *testing.T) {
	e, err := Open(testConfig(t, 4))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	samples := make([][]float32, 0, 64)
	for i := 0; i < 64; i++ {
		f := float32(i)
		samples = append(samples, vec(f, f+1, f+2, f+3))
	}

	if err := e.TrainCompression(samples, 2, 4); err != nil {
		t.Fatalf("TrainCompression failed: %v", err)
	}

	// Writes after training should still round-trip through the codec.
	id := []byte("after-train")
	v := vec(1, 2, 3, 4)
	if err := e.Store(id, v); err != nil {
		t.Fatalf("Store after training failed: %v", err)
	}
	if _, err := e.Get(id); err != nil {
		t.Fatalf("Get after training failed: %v", err)
	}
}

func TestTrainCompression_InsufficientData(t *testing.T) {
	e, err := Open(testConfig(t, 4))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	samples := [][]float32{vec(1, 2, 3, 4)}
	if err := e.TrainCompression(samples, 2, 4); err == nil {
		t.Fatal("expected error training with insufficient samples")
	}
}

func TestFlushAndReopen(t *testing.T) {
	cfg := testConfig(t, 3)
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	id := []byte("persisted")
	v := vec(7, 8, 9)
	if err := e.Store(id, v); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer e2.Close()

	got, err := e2.Get(id)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got[0] != 7 || got[1] != 8 || got[2] != 9 {
		t.Errorf("Get after reopen returned %v", got)
	}

	// The index should have been rebuilt from the sealed segment.
	result, err := e2.Search(v, 1, 0)
	if err != nil {
		t.Fatalf("Search after reopen failed: %v", err)
	}
	if len(result.Results) != 1 || string(result.Results[0].ID) != "persisted" {
		t.Errorf("expected rebuilt index to find persisted, got %+v", result.Results)
	}
}

func TestTrainCompression_PersistsAcrossReopen(t *testing.T) {
	cfg := testConfig(t, 4)
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	samples := make([][]float32, 0, 64)
	for i := 0; i < 64; i++ {
		f := float32(i)
		samples = append(samples, vec(f, f+1, f+2, f+3))
	}
	if err := e.TrainCompression(samples, 2, 4); err != nil {
		t.Fatalf("TrainCompression failed: %v", err)
	}

	id := []byte("pq-survivor")
	v := vec(1, 2, 3, 4)
	if err := e.Store(id, v); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer e2.Close()

	got, err := e2.Get(id)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a decoded vector after reopen, got nil (codebook was not reloaded)")
	}
	if len(got) != 4 {
		t.Fatalf("expected a 4-dimensional vector, got %v", got)
	}
}

func TestAutoSealOnThreshold(t *testing.T) {
	cfg := testConfig(t, 2)
	cfg.Store.MaxMemRecords = 2
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	if err := e.Store([]byte("a"), vec(1, 1)); err != nil {
		t.Fatalf("Store a failed: %v", err)
	}
	if err := e.Store([]byte("b"), vec(2, 2)); err != nil {
		t.Fatalf("Store b failed: %v", err)
	}

	_, segs := e.st.Snapshot()
	defer func() {
		for _, seg := range segs {
			e.st.ReleaseSegment(seg)
		}
	}()
	if len(segs) == 0 {
		t.Error("expected crossing MaxMemRecords to trigger an automatic seal, but no segment exists")
	}
}

func TestMaybeCompact(t *testing.T) {
	cfg := testConfig(t, 2)
	cfg.Compaction.MinSegments = 2
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	ran, err := e.MaybeCompact(context.Background())
	if err != nil {
		t.Fatalf("MaybeCompact failed: %v", err)
	}
	if ran {
		t.Error("expected no compaction with zero segments")
	}

	for i := 0; i < 2; i++ {
		if err := e.Store([]byte{byte('a' + i)}, vec(float32(i), float32(i))); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
		if err := e.Flush(); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
	}

	ran, err = e.MaybeCompact(context.Background())
	if err != nil {
		t.Fatalf("MaybeCompact failed: %v", err)
	}
	if !ran {
		t.Error("expected compaction to run once MinSegments is reached")
	}
}

func TestConcurrentWriteRejected(t *testing.T) {
	e, err := Open(testConfig(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	if err := e.st.TryLockWriter(); err != nil {
		t.Fatalf("TryLockWriter failed: %v", err)
	}
	defer e.st.UnlockWriter()

	if err := e.Store([]byte("x"), vec(1, 2)); err == nil {
		t.Error("expected Store to fail while writer lock is held")
	}
}

func TestStats(t *testing.T) {
	e, err := Open(testConfig(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	if err := e.Store([]byte("s"), vec(1, 1)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	stats := e.Stats()
	if stats["vector_count"].(int64) != 1 {
		t.Errorf("expected vector_count 1, got %v", stats["vector_count"])
	}
}
