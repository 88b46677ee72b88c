package engine

import (
	"hash/fnv"
	"sort"

	"github.com/therealutkarshpriyadarshi/vectordb/internal/store"
)

// ChangeEvent is one entry of the engine's collaborator boundary: the
// minimal information a replication consumer needs to reproduce a
// write without re-deriving its sequence number.
type ChangeEvent struct {
	Sequence  uint64
	ID        []byte
	Tombstone bool
	Vector    []float32
}

// ChangesSince returns, for every id whose latest record across the
// memtable and all sealed segments has a sequence greater than
// afterSeq, that latest record, in ascending sequence order. It is the
// engine's change stream: a caller polling with its last-seen sequence
// receives the current state of every id written since; earlier writes
// to the same id are not returned separately, and a tombstone that
// compaction has already dropped no longer appears.
func (e *Engine) ChangesSince(afterSeq uint64) ([]ChangeEvent, error) {
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
			continue // a quarantined segment contributes nothing, not an error
		}
		for _, rec := range records {
			mergeLatest(latest, rec)
		}
	}
	for _, rec := range mem.Sorted() {
		mergeLatest(latest, rec)
	}

	events := make([]ChangeEvent, 0, len(latest))
	for _, rec := range latest {
		if rec.Sequence <= afterSeq {
			continue
		}
		events = append(events, ChangeEvent{
			Sequence:  rec.Sequence,
			ID:        rec.ID,
			Tombstone: rec.Tombstone,
			Vector:    rec.Vector,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })
	return events, nil
}

// ApplyWrite applies a single replicated write without assigning a
// new sequence number. It is idempotent: re-applying an event whose
// sequence does not exceed what this engine already holds for id is a
// no-op. Because the HNSW index has no notion of sequence, an applied
// write that wins over in-memory state also replaces the index entry.
func (e *Engine) ApplyWrite(event ChangeEvent) error {
	if err := e.st.TryLockWriter(); err != nil {
		return err
	}
	defer e.st.UnlockWriter()

	rec := &store.Record{
		ID:        append([]byte(nil), event.ID...),
		Sequence:  event.Sequence,
		Tombstone: event.Tombstone,
	}
	if !event.Tombstone {
		rec.Vector = append([]float32(nil), event.Vector...)
	}
	applied, err := e.st.ApplyRecord(rec)
	if err != nil {
		return err
	}
	if !applied {
		return nil // a stale replay must not touch the index either
	}

	var indexErr error
	if event.Tombstone {
		_ = e.index.Delete(event.ID) // absent from the index is not an error here
	} else if _, ok := e.index.GetVector(event.ID); ok {
		indexErr = e.index.Update(event.ID, event.Vector)
	} else {
		_, indexErr = e.index.Insert(event.ID, event.Vector)
	}
	if indexErr != nil {
		return indexErr
	}
	return e.autoSealIfNeeded()
}

// ShardKey hashes id with FNV-1a, the routing input a sharding
// consumer uses to pick a partition. The engine itself does no
// sharding; this is the sole primitive the boundary promises.
func ShardKey(id []byte) uint64 {
	h := fnv.New64a()
	h.Write(id)
	return h.Sum64()
}
