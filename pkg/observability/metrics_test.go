package observability

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	t.Run("NewMetrics", func(t *testing.T) {
		if m == nil {
			t.Fatal("NewMetrics returned nil")
		}
		if m.VectorsInserted == nil {
			t.Error("VectorsInserted not initialized")
		}
		if m.SearchLatency == nil {
			t.Error("SearchLatency not initialized")
		}
		if m.SegmentCount == nil {
			t.Error("SegmentCount not initialized")
		}
		if m.CompactionsTotal == nil {
			t.Error("CompactionsTotal not initialized")
		}
	})

	t.Run("RecordInsertDeleteUpdate", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			m.RecordInsert()
		}
		for i := 0; i < 5; i++ {
			m.RecordDelete()
		}
		for i := 0; i < 3; i++ {
			m.RecordUpdate()
		}
	})

	t.Run("RecordError", func(t *testing.T) {
		m.RecordError("put", "invalid_shape")
		m.RecordError("search", "not_found")
		m.RecordError("train", "insufficient_training_data")
	})

	t.Run("RecordSearch", func(t *testing.T) {
		m.RecordSearch(50*time.Millisecond, 10)
		m.RecordSearch(100*time.Millisecond, 25)
		for i := 1; i <= 100; i += 10 {
			m.RecordSearch(time.Millisecond*time.Duration(i), i)
		}
	})

	t.Run("RecordRecall", func(t *testing.T) {
		m.RecordRecall(0.92)
		m.RecordRecall(0.99)
	})

	t.Run("UpdateIndexStats", func(t *testing.T) {
		m.UpdateIndexStats(1000, 4)
		m.UpdateIndexStats(50000, 8)
	})

	t.Run("UpdateSegmentStats", func(t *testing.T) {
		m.UpdateSegmentStats(3, 1024*1024*64, 500)
		m.UpdateSegmentStats(10, 1024*1024*512, 0)
	})

	t.Run("RecordCompaction", func(t *testing.T) {
		m.RecordCompaction(500*time.Millisecond, 42)
		m.RecordCompaction(5*time.Second, 0)
	})
}

func TestConcurrentMetricUpdates(t *testing.T) {
	m := NewMetrics()
	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				m.RecordInsert()
				m.RecordSearch(time.Millisecond, 5)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
