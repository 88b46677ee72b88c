package engine

import "testing"

func TestChangesSince(t *testing.T) {
	e, err := Open(testConfig(t, 2))
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

	all, err := e.ChangesSince(0)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(all))
	}
	if all[0].Sequence >= all[1].Sequence {
		t.Errorf("expected changes in ascending sequence order, got %+v", all)
	}

	// Only the tail of the stream is returned past a cursor.
	tail, err := e.ChangesSince(all[0].Sequence)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(tail) != 1 || string(tail[0].ID) != string(all[1].ID) {
		t.Errorf("expected only the later change, got %+v", tail)
	}

	// A seal must not hide writes from the change stream.
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	afterFlush, err := e.ChangesSince(0)
	if err != nil {
		t.Fatalf("ChangesSince after flush failed: %v", err)
	}
	if len(afterFlush) != 2 {
		t.Errorf("expected 2 changes surviving a flush, got %d", len(afterFlush))
	}
}

func TestChangesSince_Tombstone(t *testing.T) {
	e, err := Open(testConfig(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	if err := e.Store([]byte("a"), vec(1, 1)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := e.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	changes, err := e.ChangesSince(0)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected the tombstone to fold into one change, got %d", len(changes))
	}
	if !changes[0].Tombstone {
		t.Error("expected the surviving change to be a tombstone")
	}
}

func TestApplyWrite(t *testing.T) {
	e, err := Open(testConfig(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	event := ChangeEvent{Sequence: 5, ID: []byte("replicated"), Vector: vec(3, 4)}
	if err := e.ApplyWrite(event); err != nil {
		t.Fatalf("ApplyWrite failed: %v", err)
	}

	got, err := e.Get(event.ID)
	if err != nil {
		t.Fatalf("Get after ApplyWrite failed: %v", err)
	}
	if got[0] != 3 || got[1] != 4 {
		t.Errorf("Get returned %v, want %v", got, event.Vector)
	}

	result, err := e.Search(vec(3, 4), 1, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(result.Results) != 1 || string(result.Results[0].ID) != "replicated" {
		t.Errorf("expected ApplyWrite to mirror into the index, got %+v", result.Results)
	}
}

func TestApplyWrite_IdempotentOnStaleSequence(t *testing.T) {
	e, err := Open(testConfig(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	id := []byte("x")
	if err := e.ApplyWrite(ChangeEvent{Sequence: 10, ID: id, Vector: vec(1, 1)}); err != nil {
		t.Fatalf("first ApplyWrite failed: %v", err)
	}
	// A stale (lower-sequence) replay must not overwrite newer state.
	if err := e.ApplyWrite(ChangeEvent{Sequence: 3, ID: id, Vector: vec(9, 9)}); err != nil {
		t.Fatalf("stale ApplyWrite failed: %v", err)
	}

	got, err := e.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got[0] != 1 || got[1] != 1 {
		t.Errorf("stale ApplyWrite overwrote newer state: got %v", got)
	}
}

func TestApplyWrite_IdempotentAfterSeal(t *testing.T) {
	e, err := Open(testConfig(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	id := []byte("sealed")
	if err := e.ApplyWrite(ChangeEvent{Sequence: 10, ID: id, Vector: vec(1, 1)}); err != nil {
		t.Fatalf("first ApplyWrite failed: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// A stale replay arriving after the winning write has already been
	// sealed to a segment must not resurrect into the memtable and
	// shadow the sealed record on read.
	if err := e.ApplyWrite(ChangeEvent{Sequence: 3, ID: id, Vector: vec(9, 9)}); err != nil {
		t.Fatalf("stale ApplyWrite failed: %v", err)
	}

	got, err := e.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got[0] != 1 || got[1] != 1 {
		t.Errorf("stale ApplyWrite after seal overwrote sealed state: got %v", got)
	}

	result, err := e.Search(vec(1, 1), 1, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].Distance != 0 {
		t.Errorf("expected the index to still reflect the sealed vector, got %+v", result.Results)
	}
}

func TestApplyWrite_Tombstone(t *testing.T) {
	e, err := Open(testConfig(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	id := []byte("y")
	if err := e.ApplyWrite(ChangeEvent{Sequence: 1, ID: id, Vector: vec(1, 1)}); err != nil {
		t.Fatalf("ApplyWrite insert failed: %v", err)
	}
	if err := e.ApplyWrite(ChangeEvent{Sequence: 2, ID: id, Tombstone: true}); err != nil {
		t.Fatalf("ApplyWrite tombstone failed: %v", err)
	}

	if _, err := e.Get(id); err == nil {
		t.Error("expected Get to fail after a tombstoning ApplyWrite")
	}
}

func TestShardKey(t *testing.T) {
	a := ShardKey([]byte("foo"))
	b := ShardKey([]byte("foo"))
	c := ShardKey([]byte("bar"))

	if a != b {
		t.Error("ShardKey is not deterministic for the same input")
	}
	if a == c {
		t.Error("ShardKey collided on distinct inputs (possible but vanishingly unlikely here)")
	}
}
