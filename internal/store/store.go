// Package store implements the append-only segmented log and memtable
// that back the engine: writes land in an in-memory memtable, seal
// flushes it to an immutable on-disk segment, and background
// compaction merges segments and migrates them onto new PQ codecs.
package store

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/therealutkarshpriyadarshi/vectordb/pkg/distance"
)

// segmentHandle reference-counts readers of an immutable Segment so a
// segment retired by compaction is only unmapped once every in-flight
// reader has released it.
type segmentHandle struct {
	seg      *Segment
	refCount int32
	retired  int32
}

func (h *segmentHandle) acquire() {
	atomic.AddInt32(&h.refCount, 1)
}

func (h *segmentHandle) release() {
	if atomic.AddInt32(&h.refCount, -1) == 0 && atomic.LoadInt32(&h.retired) == 1 {
		_ = h.seg.Unlink()
	}
}

func (h *segmentHandle) retire() {
	atomic.StoreInt32(&h.retired, 1)
	if atomic.LoadInt32(&h.refCount) == 0 {
		_ = h.seg.Unlink()
	}
}

// Store is a single instance of the embedded log: one writer at a
// time, any number of concurrent readers against an immutable segment
// snapshot.
type Store struct {
	dir string
	dim int

	writeMu sync.Mutex // held only for the duration of an individual write/seal

	writerLock sync.Mutex // TryLock'd once per process to reject a second writer

	memMu    sync.RWMutex
	memtable *Memtable

	segments atomic.Value // []*segmentHandle, immutable snapshot

	manifestMu sync.Mutex
	manifest   *Manifest

	nextSegmentID uint64
	nextSequence  uint64

	codec    Codec
	hasNorms bool

	codecsMu   sync.RWMutex
	codecsByHash map[[16]byte]Codec
	decodeCodec  func([]byte) (Codec, error)

	maxMemRecords int
	maxMemBytes   int
}

// Options configures a Store at Open time.
type Options struct {
	Dim           int
	MaxMemRecords int
	MaxMemBytes   int

	// DecodeCodec reconstructs a Codec from the bytes of a persisted
	// SDBC codebook file. Required for Open to reload a codec set by a
	// prior SetCodec call; a nil value leaves codec state memory-only,
	// matching this store's behavior before codec persistence existed.
	DecodeCodec func([]byte) (Codec, error)
}

// Open opens (or creates) a store rooted at dir, replaying its
// manifest and rebuilding the write sequence counter from the
// segments found there. Open does not check for other writers on dir;
// writer exclusion applies per Store, through TryLockWriter
// (ErrConcurrentModification).
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", ErrIoError, err)
	}

	manifest, err := Load(dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:           dir,
		dim:           opts.Dim,
		manifest:      manifest,
		maxMemRecords: opts.MaxMemRecords,
		maxMemBytes:   opts.MaxMemBytes,
		decodeCodec:   opts.DecodeCodec,
	}
	s.memtable = NewMemtable(opts.MaxMemRecords, opts.MaxMemBytes)
	s.codecsByHash = make(map[[16]byte]Codec)

	handles := make([]*segmentHandle, 0, len(manifest.Segments))
	var quarantined []uint64
	var maxSeq uint64
	var maxSegID uint64

	for _, ms := range manifest.Segments {
		seg, err := OpenSegment(ms.ID, ms.Path)
		if err != nil {
			quarantined = append(quarantined, ms.ID)
			continue
		}
		handles = append(handles, &segmentHandle{seg: seg})
		if _, maxS := seg.SequenceRange(); maxS > maxSeq {
			maxSeq = maxS
		}
		if ms.ID > maxSegID {
			maxSegID = ms.ID
		}
	}

	manifestDirty := false
	if len(quarantined) > 0 {
		for _, id := range quarantined {
			manifest.RemoveSegment(id)
		}
		manifestDirty = true
	}

	// Reload persisted codebooks the same way segments are reloaded:
	// best-effort, quarantining (dropping from the manifest) whatever
	// fails to read back rather than refusing to open the store.
	if s.decodeCodec != nil {
		kept := make([]ManifestCodec, 0, len(manifest.Codecs))
		for _, mc := range manifest.Codecs {
			data, err := os.ReadFile(mc.Path)
			if err != nil {
				manifestDirty = true
				continue
			}
			codec, err := s.decodeCodec(data)
			if err != nil {
				manifestDirty = true
				continue
			}
			s.codecsByHash[codec.Hash()] = codec
			kept = append(kept, mc)
		}
		manifest.Codecs = kept

		if manifest.HasActiveCodec {
			if codec, ok := s.codecsByHash[manifest.ActiveCodec]; ok {
				s.codec = codec
				s.hasNorms = manifest.ActiveCodecHasNorms
			} else {
				manifest.HasActiveCodec = false
				manifestDirty = true
			}
		}
	}

	if manifestDirty {
		if err := manifest.Save(dir); err != nil {
			return nil, err
		}
	}

	s.segments.Store(handles)
	s.nextSequence = maxSeq + 1
	s.nextSegmentID = maxSegID + 1

	return s, nil
}

// Put writes (or overwrites) the vector for id, assigning it the next
// write sequence number. Last-writer-wins is enforced by sequence
// order, not call order, so a higher sequence always survives.
func (s *Store) Put(id []byte, vector []float32) error {
	if len(id) == 0 || len(id) > MaxIDLen {
		return fmt.Errorf("%w: id length %d exceeds limit", ErrInvalidShape, len(id))
	}
	if s.dim != 0 && len(vector) != s.dim {
		return fmt.Errorf("%w: expected dimension %d, got %d", ErrInvalidShape, s.dim, len(vector))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec := &Record{
		ID:       append([]byte(nil), id...),
		Sequence: s.nextSequence,
		Vector:   append([]float32(nil), vector...),
	}
	s.nextSequence++

	if s.codec != nil {
		rec.Codes = s.codec.Encode(vector)
		rec.Norm = distance.Norm(vector)
	}

	s.memtable.Put(rec)
	return nil
}

// Delete marks id tombstoned as of the next write sequence. Deleting
// an absent id is not an error: tombstones are compacted away, not
// diffed against existing state.
func (s *Store) Delete(id []byte) error {
	if len(id) == 0 || len(id) > MaxIDLen {
		return fmt.Errorf("%w: id length %d exceeds limit", ErrInvalidShape, len(id))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec := &Record{
		ID:        append([]byte(nil), id...),
		Sequence:  s.nextSequence,
		Tombstone: true,
	}
	s.nextSequence++

	s.memtable.Put(rec)
	return nil
}

// Get returns the current record for id, checking the memtable first
// and then segments newest-to-oldest. A tombstoned or absent id
// returns ErrNotFound.
func (s *Store) Get(id []byte) (*Record, error) {
	if rec, ok := s.memtable.Get(id); ok {
		if rec.Tombstone {
			return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
		}
		return rec.Clone(), nil
	}

	if rec, ok := s.visibleSegmentRecord(id); ok {
		if rec.Tombstone {
			return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
		}
		return rec, nil
	}

	return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
}

// visibleSegmentRecord returns the newest sealed-segment record for
// id, live or tombstoned, checking segments newest-to-oldest. Unlike
// Get it does not translate a tombstone into ErrNotFound: callers that
// need to compare sequence numbers (ApplyRecord) care about the raw
// record, not its visibility.
func (s *Store) visibleSegmentRecord(id []byte) (*Record, bool) {
	handles := s.segments.Load().([]*segmentHandle)
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		h.acquire()
		rec, ok, err := h.seg.Get(id, s.codecForHash(h.seg.CodecHash()))
		h.release()
		if err != nil {
			continue // degraded read: skip a segment that fails mid-read
		}
		if ok {
			return rec, true
		}
	}
	return nil, false
}

// ExceedsMemThreshold reports whether the live memtable has crossed
// either of its configured seal thresholds, the signal a caller uses
// to trigger an automatic Seal after a write.
func (s *Store) ExceedsMemThreshold() bool {
	return s.memtable.ExceedsThreshold()
}

// Seal flushes the current memtable to a new immutable segment and
// installs it atomically ahead of the existing segment list. Returns
// false if the memtable was empty (nothing to seal).
func (s *Store) Seal() (bool, error) {
	s.writeMu.Lock()
	if s.memtable.Len() == 0 {
		s.writeMu.Unlock()
		return false, nil
	}
	sealed := s.memtable
	s.memtable = NewMemtable(s.maxMemRecords, s.maxMemBytes)
	s.writeMu.Unlock()

	records := sealed.Sorted()

	s.manifestMu.Lock()
	segID := s.nextSegmentID
	s.nextSegmentID++
	s.manifestMu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("segment-%020d.sdbs", segID))
	if err := WriteSegment(path, segID, s.dim, records, s.codec, s.hasNorms); err != nil {
		return false, err
	}

	seg, err := OpenSegment(segID, path)
	if err != nil {
		return false, err
	}

	s.manifestMu.Lock()
	defer s.manifestMu.Unlock()

	s.manifest.Segments = append(s.manifest.Segments, ManifestSegment{ID: segID, Path: path, Generation: 0})
	if err := s.manifest.Save(s.dir); err != nil {
		return false, err
	}

	old := s.segments.Load().([]*segmentHandle)
	next := make([]*segmentHandle, len(old)+1)
	copy(next, old)
	next[len(old)] = &segmentHandle{seg: seg}
	s.segments.Store(next)

	return true, nil
}

// SetCodec installs the active PQ codec for subsequent writes. It
// does not retroactively re-encode the memtable or existing segments;
// migration onto a new codec happens through compaction. The codec is
// also registered under its content hash so existing segments encoded
// with it (including after it stops being active) can still be
// decoded during compaction.
//
// When codec implements PersistableCodec, its codebook is written to a
// "<hash>.sdbc" file and recorded in the manifest's codec/active_codec
// lines before the codec becomes active in memory, so a crash between
// the two never leaves the manifest pointing at a codec with no file.
// A codec that does not implement PersistableCodec is active only for
// this process and will not survive a reopen.
func (s *Store) SetCodec(codec Codec, hasNorms bool) error {
	if codec != nil {
		if pc, ok := codec.(PersistableCodec); ok {
			data, err := pc.Serialize()
			if err != nil {
				return fmt.Errorf("%w: serialize codec: %v", ErrIoError, err)
			}
			hash := codec.Hash()
			path := s.codebookPath(hash)
			if err := writeFileAtomic(path, data); err != nil {
				return err
			}

			s.manifestMu.Lock()
			known := false
			for _, mc := range s.manifest.Codecs {
				if mc.Hash == hash {
					known = true
					break
				}
			}
			if !known {
				s.manifest.Codecs = append(s.manifest.Codecs, ManifestCodec{Hash: hash, Path: path})
			}
			s.manifest.ActiveCodec = hash
			s.manifest.HasActiveCodec = true
			s.manifest.ActiveCodecHasNorms = hasNorms
			err = s.manifest.Save(s.dir)
			s.manifestMu.Unlock()
			if err != nil {
				return err
			}
		}
	}

	s.writeMu.Lock()
	s.codec = codec
	s.hasNorms = hasNorms
	s.writeMu.Unlock()

	if codec != nil {
		s.codecsMu.Lock()
		s.codecsByHash[codec.Hash()] = codec
		s.codecsMu.Unlock()
	}
	return nil
}

// codebookPath returns the on-disk path for the codebook file
// identified by hash.
func (s *Store) codebookPath(hash [16]byte) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.sdbc", hex.EncodeToString(hash[:])))
}

// codecForHash returns the registered codec matching hash, or nil for
// the zero hash (raw, unencoded segments).
func (s *Store) codecForHash(hash [16]byte) Codec {
	var zero [16]byte
	if hash == zero {
		return nil
	}
	s.codecsMu.RLock()
	defer s.codecsMu.RUnlock()
	return s.codecsByHash[hash]
}

// CodecForSegment returns the codec that can decode seg's payloads,
// for callers (the compactor, the replication snapshot iterator) that
// read segments directly rather than through Get.
func (s *Store) CodecForSegment(seg *Segment) Codec {
	return s.codecForHash(seg.CodecHash())
}

// ApplyRecord installs a record carrying an already-assigned sequence,
// for a replication consumer applying writes from a change stream. It
// is idempotent: a record whose sequence does not exceed the visible
// one already held for its id — whether that record lives in the
// memtable or has since been sealed to a segment — is silently
// dropped, so a stale replay can never shadow newer sealed state.
// Returns whether the record was actually applied, so a caller
// mirroring the write elsewhere (the engine's HNSW index) can skip
// that mirror on a dropped, stale record.
func (s *Store) ApplyRecord(rec *Record) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if existing, ok := s.memtable.Get(rec.ID); ok && existing.Sequence >= rec.Sequence {
		return false, nil
	}
	if existing, ok := s.visibleSegmentRecord(rec.ID); ok && existing.Sequence >= rec.Sequence {
		return false, nil
	}
	if rec.Sequence >= s.nextSequence {
		s.nextSequence = rec.Sequence + 1
	}
	s.memtable.Put(rec)
	return true, nil
}

// Snapshot returns the current immutable segment list alongside the
// live memtable, for the compactor and for replication's snapshot
// iterator. Each returned segment must be released via ReleaseSegment
// once the caller is done with it.
func (s *Store) Snapshot() (*Memtable, []*Segment) {
	handles := s.segments.Load().([]*segmentHandle)
	segs := make([]*Segment, len(handles))
	for i, h := range handles {
		h.acquire()
		segs[i] = h.seg
	}
	return s.memtable, segs
}

// ReleaseSegment releases a reference obtained through Snapshot.
func (s *Store) ReleaseSegment(seg *Segment) {
	for _, h := range s.segments.Load().([]*segmentHandle) {
		if h.seg == seg {
			h.release()
			return
		}
	}
}

// replaceSegments atomically swaps old for replacement in the segment
// list and retires old (unmapped once every reader releases it). Used
// by the compactor after a merged segment is durable in the manifest.
func (s *Store) replaceSegments(old []*Segment, replacement *Segment) error {
	oldSet := make(map[uint64]bool, len(old))
	for _, seg := range old {
		oldSet[seg.ID] = true
	}

	current := s.segments.Load().([]*segmentHandle)
	next := make([]*segmentHandle, 0, len(current)+1)
	var retiring []*segmentHandle

	for _, h := range current {
		if oldSet[h.seg.ID] {
			retiring = append(retiring, h)
			continue
		}
		next = append(next, h)
	}
	if replacement != nil {
		next = append(next, &segmentHandle{seg: replacement})
	}

	s.manifestMu.Lock()
	kept := s.manifest.Segments[:0]
	for _, ms := range s.manifest.Segments {
		if !oldSet[ms.ID] {
			kept = append(kept, ms)
		}
	}
	s.manifest.Segments = kept
	if replacement != nil {
		s.manifest.Segments = append(s.manifest.Segments, ManifestSegment{ID: replacement.ID, Path: replacement.Path, Generation: 0})
	}
	sort.Slice(s.manifest.Segments, func(i, j int) bool { return s.manifest.Segments[i].ID < s.manifest.Segments[j].ID })
	err := s.manifest.Save(s.dir)
	s.manifestMu.Unlock()
	if err != nil {
		return err
	}

	s.segments.Store(next)
	for _, h := range retiring {
		h.retire()
	}
	return nil
}

// AllocateSegmentID reserves the next segment id, used by the
// compactor for its merged output file.
func (s *Store) AllocateSegmentID() uint64 {
	s.manifestMu.Lock()
	defer s.manifestMu.Unlock()
	id := s.nextSegmentID
	s.nextSegmentID++
	return id
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Close releases all mapped segments. The store must not be used
// afterward.
func (s *Store) Close() error {
	handles := s.segments.Load().([]*segmentHandle)
	var firstErr error
	for _, h := range handles {
		if err := h.seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TryLockWriter attempts to take the single-writer lock for this
// process, returning ErrConcurrentModification if another writer
// already holds it. Release with UnlockWriter.
func (s *Store) TryLockWriter() error {
	if !s.writerLock.TryLock() {
		return fmt.Errorf("%w: another writer is active", ErrConcurrentModification)
	}
	return nil
}

// UnlockWriter releases the single-writer lock taken by TryLockWriter.
func (s *Store) UnlockWriter() { s.writerLock.Unlock() }

// MaxIDLen is the maximum byte length of an identifier.
const MaxIDLen = 256
