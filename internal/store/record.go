package store

// Record is a single vector record as stored in the memtable or a
// segment: an opaque identifier, the sequence number assigned at
// ingest, a tombstone flag, and either a raw vector or a PQ-encoded
// payload plus (for non-decomposable metrics) its stored norm.
type Record struct {
	ID        []byte
	Sequence  uint64
	Tombstone bool

	// Vector holds the raw float32 payload. Set when the record was
	// stored (or decoded) in its uncompressed form.
	Vector []float32

	// Codes holds the PQ-encoded payload. Set when the record's
	// segment uses a PQ codec.
	Codes []byte

	// Norm is the stored L2 norm, populated for PQ-encoded records
	// under cosine/angular metrics where ADC requires it.
	Norm float32
}

// Clone returns a deep copy of the record, so callers handed a record
// from a memtable or segment cannot mutate shared state.
func (r *Record) Clone() *Record {
	out := &Record{
		ID:        append([]byte(nil), r.ID...),
		Sequence:  r.Sequence,
		Tombstone: r.Tombstone,
		Norm:      r.Norm,
	}
	if r.Vector != nil {
		out.Vector = append([]float32(nil), r.Vector...)
	}
	if r.Codes != nil {
		out.Codes = append([]byte(nil), r.Codes...)
	}
	return out
}
