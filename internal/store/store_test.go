package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Dim: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	vec := []float32{1, 2, 3, 4}
	if err := s.Put([]byte("a"), vec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := s.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Vector) != 4 || rec.Vector[0] != 1 {
		t.Fatalf("unexpected vector: %v", rec.Vector)
	}
}

func TestPutOverwriteLastWriterWins(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Dim: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Put([]byte("a"), []float32{1, 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put([]byte("a"), []float32{2, 2}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := s.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Vector[0] != 2 {
		t.Fatalf("expected last write to win, got %v", rec.Vector)
	}
}

func TestDeleteThenGetNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Dim: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Put([]byte("a"), []float32{1, 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = s.Get([]byte("a"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAbsentIDIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Dim: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Delete([]byte("nope")); err != nil {
		t.Fatalf("Delete of absent id should not error, got %v", err)
	}
}

func TestInvalidShapeRejected(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Dim: 3})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	err = s.Put([]byte("a"), []float32{1, 2})
	if !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
}

func TestSealAndReopenPreservesState(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Dim: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 1000
	for i := 0; i < n; i++ {
		id := []byte(fmt.Sprintf("id-%05d", i))
		if err := s.Put(id, []float32{float32(i), float32(-i)}); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	sealed, err := s.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !sealed {
		t.Fatalf("expected Seal to report work done")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, Options{Dim: 2})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for i := 0; i < n; i += 97 {
		id := []byte(fmt.Sprintf("id-%05d", i))
		rec, err := reopened.Get(id)
		if err != nil {
			t.Fatalf("Get %s after reopen: %v", id, err)
		}
		if rec.Vector[0] != float32(i) {
			t.Fatalf("id %s: expected %f, got %f", id, float32(i), rec.Vector[0])
		}
	}
}

func TestSealOnEmptyMemtableIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Dim: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	sealed, err := s.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed {
		t.Fatalf("expected no-op seal on empty memtable")
	}
}

func TestTryLockWriterRejectsSecondWriter(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Dim: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.TryLockWriter(); err != nil {
		t.Fatalf("first TryLockWriter: %v", err)
	}
	defer s.UnlockWriter()

	err = s.TryLockWriter()
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}
