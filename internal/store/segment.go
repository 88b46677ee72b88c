package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

const (
	segmentMagic   = "SDBS"
	segmentVersion = uint16(1)
	segmentHeaderSize = 72

	flagPQEncoded       = uint16(1 << 0)
	flagHasGraphFragment = uint16(1 << 1)
	flagHasNorms        = uint16(1 << 2)
)

// Codec is the subset of the PQ codec a segment needs to encode and
// decode its payload. internal/quantization.ProductQuantizer satisfies
// this interface.
type Codec interface {
	Encode(vector []float32) []byte
	Decode(codes []byte) []float32
	Hash() [16]byte
	GetNumSubvectors() int
}

// PersistableCodec is a Codec that can serialize its trained state to
// the SDBC codebook file format, so SetCodec can write it to disk and
// Open can reload it on a later start. internal/quantization.
// ProductQuantizer satisfies this interface.
type PersistableCodec interface {
	Codec
	Serialize() ([]byte, error)
}

// segmentHeader mirrors the on-disk layout documented in the segment
// file format.
type segmentHeader struct {
	Version             uint16
	Flags               uint16
	Dim                 int
	RecordCount         int
	MinSequence         uint64
	MaxSequence         uint64
	CodecHash           [16]byte
	M                   int
	Stride              int
	IDIndexOffset       uint64
	GraphFragmentOffset uint64
}

// idIndexEntry is one (id, file offset of its record) pair, sorted by
// id to support binary search on open segments.
type idIndexEntry struct {
	id     []byte
	offset uint64
}

// Segment is an immutable, memory-mapped on-disk artifact produced by
// sealing a memtable or by compaction.
type Segment struct {
	ID     uint64
	Path   string
	header segmentHeader
	data   []byte
	index  []idIndexEntry
	file   *os.File
}

// WriteSegment writes records (already sorted by id, ascending) to a
// new segment file at path, atomically: write to a temp name, fsync,
// rename. hasNorms controls whether each PQ-encoded payload carries a
// trailing stored norm (required for cosine/angular ADC).
func WriteSegment(path string, id uint64, dim int, records []*Record, codec Codec, hasNorms bool) error {
	var flags uint16
	var codecHash [16]byte
	var m, stride int

	if codec != nil {
		flags |= flagPQEncoded
		codecHash = codec.Hash()
		m = codec.GetNumSubvectors()
		stride = m
		if hasNorms {
			flags |= flagHasNorms
			stride += 4
		}
	} else {
		stride = dim * 4
	}

	var minSeq, maxSeq uint64
	if len(records) > 0 {
		minSeq, maxSeq = records[0].Sequence, records[0].Sequence
		for _, r := range records {
			if r.Sequence < minSeq {
				minSeq = r.Sequence
			}
			if r.Sequence > maxSeq {
				maxSeq = r.Sequence
			}
		}
	}

	buf := make([]byte, segmentHeaderSize)
	copy(buf[0:4], segmentMagic)
	binary.LittleEndian.PutUint16(buf[4:6], segmentVersion)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(dim))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(records)))
	binary.LittleEndian.PutUint64(buf[16:24], minSeq)
	binary.LittleEndian.PutUint64(buf[24:32], maxSeq)
	copy(buf[32:48], codecHash[:])
	binary.LittleEndian.PutUint32(buf[48:52], uint32(m))
	binary.LittleEndian.PutUint32(buf[52:56], uint32(stride))
	// id_index_offset and graph_fragment_offset patched below

	recordBlock := make([]byte, 0, len(records)*(2+8+1+8+stride))
	index := make([]idIndexEntry, 0, len(records))
	offset := uint64(segmentHeaderSize)

	for _, r := range records {
		entryOffset := offset

		var idLen [2]byte
		binary.LittleEndian.PutUint16(idLen[:], uint16(len(r.ID)))
		recordBlock = append(recordBlock, idLen[:]...)
		recordBlock = append(recordBlock, r.ID...)

		var recFlags byte
		if r.Tombstone {
			recFlags |= 1
		}
		recordBlock = append(recordBlock, recFlags)

		var seqBuf [8]byte
		binary.LittleEndian.PutUint64(seqBuf[:], r.Sequence)
		recordBlock = append(recordBlock, seqBuf[:]...)

		payload := make([]byte, stride)
		if codec != nil {
			copy(payload, r.Codes)
			if hasNorms {
				binary.LittleEndian.PutUint32(payload[m:m+4], math.Float32bits(r.Norm))
			}
		} else {
			for i, f := range r.Vector {
				binary.LittleEndian.PutUint32(payload[i*4:i*4+4], math.Float32bits(f))
			}
		}
		recordBlock = append(recordBlock, payload...)

		index = append(index, idIndexEntry{id: r.ID, offset: entryOffset})
		offset += uint64(2+len(r.ID)+1+8+stride)
	}

	idIndexOffset := offset
	indexBlock := make([]byte, 0, len(index)*(2+8))
	for _, e := range index {
		var idLen [2]byte
		binary.LittleEndian.PutUint16(idLen[:], uint16(len(e.id)))
		indexBlock = append(indexBlock, idLen[:]...)
		indexBlock = append(indexBlock, e.id...)
		var offBuf [8]byte
		binary.LittleEndian.PutUint64(offBuf[:], e.offset)
		indexBlock = append(indexBlock, offBuf[:]...)
	}

	binary.LittleEndian.PutUint64(buf[56:64], idIndexOffset)
	binary.LittleEndian.PutUint64(buf[64:72], 0) // no graph fragment

	full := make([]byte, 0, len(buf)+len(recordBlock)+len(indexBlock))
	full = append(full, buf...)
	full = append(full, recordBlock...)
	full = append(full, indexBlock...)

	return writeFileAtomic(path, full)
}

// writeFileAtomic writes data to path via a temp-name-then-rename, the
// same pattern used throughout the store for segment and manifest
// writes: write, fsync, rename, fsync the containing directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create temp segment: %v", ErrIoError, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: write temp segment: %v", ErrIoError, err)
	}
	if err := fsyncRetryEINTR(f); err != nil {
		f.Close()
		return fmt.Errorf("%w: fsync temp segment: %v", ErrIoError, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close temp segment: %v", ErrIoError, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: rename segment: %v", ErrIoError, err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = fsyncRetryEINTR(dirFile)
		dirFile.Close()
	}

	return nil
}

// fsyncRetryEINTR retries fsync on transient EINTR, the one retry the
// engine performs on the caller's behalf per the error-handling design.
func fsyncRetryEINTR(f *os.File) error {
	for {
		err := f.Sync()
		if err == nil {
			return nil
		}
		if err == os.ErrClosed {
			return err
		}
		if isEINTR(err) {
			continue
		}
		return err
	}
}

// OpenSegment mmaps an existing segment file and parses its header
// and id index.
func OpenSegment(id uint64, path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open segment: %v", ErrIoError, err)
	}

	data, err := mmapFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	seg := &Segment{ID: id, Path: path, data: data, file: f}
	if err := seg.parseHeader(); err != nil {
		seg.Close()
		return nil, err
	}
	if err := seg.parseIndex(); err != nil {
		seg.Close()
		return nil, err
	}
	return seg, nil
}

func (s *Segment) parseHeader() error {
	if len(s.data) < segmentHeaderSize {
		return fmt.Errorf("%w: segment shorter than header", ErrCorruptSegment)
	}
	if string(s.data[0:4]) != segmentMagic {
		return fmt.Errorf("%w: bad segment magic", ErrCorruptSegment)
	}

	h := segmentHeader{
		Version:     binary.LittleEndian.Uint16(s.data[4:6]),
		Flags:       binary.LittleEndian.Uint16(s.data[6:8]),
		Dim:         int(binary.LittleEndian.Uint32(s.data[8:12])),
		RecordCount: int(binary.LittleEndian.Uint32(s.data[12:16])),
		MinSequence: binary.LittleEndian.Uint64(s.data[16:24]),
		MaxSequence: binary.LittleEndian.Uint64(s.data[24:32]),
	}
	copy(h.CodecHash[:], s.data[32:48])
	h.M = int(binary.LittleEndian.Uint32(s.data[48:52]))
	h.Stride = int(binary.LittleEndian.Uint32(s.data[52:56]))
	h.IDIndexOffset = binary.LittleEndian.Uint64(s.data[56:64])
	h.GraphFragmentOffset = binary.LittleEndian.Uint64(s.data[64:72])

	if h.Version != segmentVersion {
		return fmt.Errorf("%w: unsupported segment version %d", ErrCorruptSegment, h.Version)
	}
	if int(h.IDIndexOffset) > len(s.data) {
		return fmt.Errorf("%w: id index offset past end of file", ErrCorruptSegment)
	}

	s.header = h
	return nil
}

func (s *Segment) parseIndex() error {
	offset := s.header.IDIndexOffset
	end := s.header.GraphFragmentOffset
	if end == 0 {
		end = uint64(len(s.data))
	}

	index := make([]idIndexEntry, 0, s.header.RecordCount)
	for offset < end {
		if offset+2 > uint64(len(s.data)) {
			return fmt.Errorf("%w: truncated id index", ErrCorruptSegment)
		}
		idLen := binary.LittleEndian.Uint16(s.data[offset : offset+2])
		offset += 2
		if offset+uint64(idLen)+8 > uint64(len(s.data)) {
			return fmt.Errorf("%w: truncated id index entry", ErrCorruptSegment)
		}
		id := append([]byte(nil), s.data[offset:offset+uint64(idLen)]...)
		offset += uint64(idLen)
		recOffset := binary.LittleEndian.Uint64(s.data[offset : offset+8])
		offset += 8

		index = append(index, idIndexEntry{id: id, offset: recOffset})
	}

	s.index = index
	return nil
}

// IsPQEncoded reports whether this segment stores PQ codes rather
// than raw vectors.
func (s *Segment) IsPQEncoded() bool { return s.header.Flags&flagPQEncoded != 0 }

// HasNorms reports whether this segment's PQ payloads carry a stored
// norm (cosine/angular ADC support).
func (s *Segment) HasNorms() bool { return s.header.Flags&flagHasNorms != 0 }

// CodecHash returns the content hash of the codebook this segment was
// encoded with (zero if raw).
func (s *Segment) CodecHash() [16]byte { return s.header.CodecHash }

// Dim returns the vector dimension.
func (s *Segment) Dim() int { return s.header.Dim }

// RecordCount returns the number of records stored (including
// tombstones).
func (s *Segment) RecordCount() int { return s.header.RecordCount }

// SequenceRange returns the (min, max) sequence numbers in the segment.
func (s *Segment) SequenceRange() (uint64, uint64) {
	return s.header.MinSequence, s.header.MaxSequence
}

// Get performs a binary search of the segment's id index and returns
// the decoded record, if present. Decoding applies if the segment was
// written with a codec.
func (s *Segment) Get(id []byte, codec Codec) (*Record, bool, error) {
	lo, hi := 0, len(s.index)
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := compareBytes(s.index[mid].id, id)
		if cmp == 0 {
			return s.readRecordAt(s.index[mid].offset, codec)
		}
		if cmp < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return nil, false, nil
}

// Records returns every record in the segment, id-sorted (the order
// they were written in), for compaction's k-way merge.
func (s *Segment) Records(codec Codec) ([]*Record, error) {
	out := make([]*Record, 0, len(s.index))
	for _, e := range s.index {
		rec, ok, err := s.readRecordAt(e.offset, codec)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: id index points past record block", ErrCorruptSegment)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Segment) readRecordAt(offset uint64, codec Codec) (*Record, bool, error) {
	data := s.data
	if offset+2 > uint64(len(data)) {
		return nil, false, fmt.Errorf("%w: record offset out of range", ErrCorruptSegment)
	}
	idLen := binary.LittleEndian.Uint16(data[offset : offset+2])
	offset += 2

	if offset+uint64(idLen)+1+8+uint64(s.header.Stride) > uint64(len(data)) {
		return nil, false, fmt.Errorf("%w: truncated record", ErrCorruptSegment)
	}

	id := append([]byte(nil), data[offset:offset+uint64(idLen)]...)
	offset += uint64(idLen)

	flags := data[offset]
	offset++
	tombstone := flags&1 != 0

	sequence := binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8

	payload := data[offset : offset+uint64(s.header.Stride)]

	rec := &Record{ID: id, Sequence: sequence, Tombstone: tombstone}

	if s.IsPQEncoded() {
		codes := append([]byte(nil), payload[:s.header.M]...)
		rec.Codes = codes
		if s.HasNorms() {
			rec.Norm = math.Float32frombits(binary.LittleEndian.Uint32(payload[s.header.M : s.header.M+4]))
		}
		if codec != nil && !tombstone {
			rec.Vector = codec.Decode(codes)
		}
	} else {
		vec := make([]float32, s.header.Dim)
		for i := 0; i < s.header.Dim; i++ {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4 : i*4+4]))
		}
		rec.Vector = vec
	}

	return rec, true, nil
}

// Close unmaps and closes the underlying file.
func (s *Segment) Close() error {
	var err error
	if s.data != nil {
		err = munmapFile(s.data)
		s.data = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Unlink closes and removes the segment file from disk. Used by
// compaction once the new manifest referencing the merged output is
// durable.
func (s *Segment) Unlink() error {
	if err := s.Close(); err != nil {
		return err
	}
	return os.Remove(s.Path)
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
