package hnsw

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// VectorInsert is one (id, vector) pair submitted to a batch insert.
type VectorInsert struct {
	ID     []byte
	Vector []float32
}

// VectorUpdate is one (id, new vector) pair submitted to a batch update.
type VectorUpdate struct {
	ID     []byte
	Vector []float32
}

// BatchInsertResult summarizes a batch insert.
type BatchInsertResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// BatchDeleteResult summarizes a batch delete.
type BatchDeleteResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// BatchUpdateResult summarizes a batch update.
type BatchUpdateResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// ProgressCallback reports (processed, total) as a batch operation proceeds.
type ProgressCallback func(processed, total int)

const batchWorkers = 8

// BatchInsert inserts many vectors using a fixed worker pool. Order
// of insertion is not guaranteed; use BatchInsertSequential when it
// must be.
func (idx *Index) BatchInsert(items []VectorInsert, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{TotalProcessed: len(items), Errors: make([]error, 0)}
	if len(items) == 0 {
		return result
	}

	var errMu sync.Mutex
	jobs := make(chan int, len(items))
	var wg sync.WaitGroup
	var successCount, failureCount int64

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := items[i]
				if _, err := idx.Insert(item.ID, item.Vector); err != nil {
					errMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("item %d: %w", i, err))
					errMu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}
				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(items))
				}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// BatchInsertSequential inserts vectors one at a time, in order.
func (idx *Index) BatchInsertSequential(items []VectorInsert, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{TotalProcessed: len(items), Errors: make([]error, 0)}
	if len(items) == 0 {
		return result
	}

	for i, item := range items {
		if _, err := idx.Insert(item.ID, item.Vector); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("item %d: %w", i, err))
			result.FailureCount++
		} else {
			result.SuccessCount++
		}
		if progressCb != nil {
			progressCb(i+1, len(items))
		}
	}
	return result
}

// BatchDelete tombstones many ids using a fixed worker pool.
func (idx *Index) BatchDelete(ids [][]byte, progressCb ProgressCallback) *BatchDeleteResult {
	result := &BatchDeleteResult{TotalProcessed: len(ids), Errors: make([]error, 0)}
	if len(ids) == 0 {
		return result
	}

	var errMu sync.Mutex
	jobs := make(chan int, len(ids))
	var wg sync.WaitGroup
	var successCount, failureCount int64

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := idx.Delete(ids[i]); err != nil {
					errMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("id %x: %w", ids[i], err))
					errMu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}
				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(ids))
				}
			}
		}()
	}

	for i := range ids {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// BatchUpdate applies many updates using a fixed worker pool.
func (idx *Index) BatchUpdate(updates []VectorUpdate, progressCb ProgressCallback) *BatchUpdateResult {
	result := &BatchUpdateResult{TotalProcessed: len(updates), Errors: make([]error, 0)}
	if len(updates) == 0 {
		return result
	}

	var errMu sync.Mutex
	jobs := make(chan int, len(updates))
	var wg sync.WaitGroup
	var successCount, failureCount int64

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				u := updates[i]
				if err := idx.Update(u.ID, u.Vector); err != nil {
					errMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("id %x: %w", u.ID, err))
					errMu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}
				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(updates))
				}
			}
		}()
	}

	for i := range updates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// BatchInsertWithBuffer processes vectors in fixed-size chunks,
// bounding peak memory for very large batches.
func (idx *Index) BatchInsertWithBuffer(items []VectorInsert, bufferSize int, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{TotalProcessed: len(items), Errors: make([]error, 0)}
	if len(items) == 0 {
		return result
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	for start := 0; start < len(items); start += bufferSize {
		end := start + bufferSize
		if end > len(items) {
			end = len(items)
		}

		chunk := items[start:end]
		chunkCb := func(processed, total int) {
			if progressCb != nil {
				progressCb(start+processed, len(items))
			}
		}

		chunkResult := idx.BatchInsert(chunk, chunkCb)
		result.SuccessCount += chunkResult.SuccessCount
		result.FailureCount += chunkResult.FailureCount
		result.Errors = append(result.Errors, chunkResult.Errors...)
	}

	return result
}

// GetBatchStats returns a snapshot of index shape useful for batch
// operation tuning.
func (idx *Index) GetBatchStats() map[string]interface{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var entryPoint interface{}
	if idx.hasEntryPoint {
		entryPoint = idx.entryPoint
	}

	return map[string]interface{}{
		"total_vectors":  idx.size,
		"max_layer":      idx.maxLayer,
		"entry_point_id": entryPoint,
	}
}
