package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// CompactorOptions configures when and how background compaction runs.
type CompactorOptions struct {
	// MinSegments is the smallest number of sealed segments that
	// triggers a merge; below it MaybeCompact is a no-op.
	MinSegments int

	// TriggerRate paces how often a caller's poll loop is allowed to
	// actually run a merge, independent of how often MaybeCompact is
	// called — a segment-heavy write burst should not also trigger a
	// merge storm.
	TriggerRate rate.Limit
	TriggerBurst int
}

// DefaultCompactorOptions matches the store's default seal thresholds:
// merge once three or more segments have accumulated, at most once
// per second.
func DefaultCompactorOptions() CompactorOptions {
	return CompactorOptions{
		MinSegments:  3,
		TriggerRate:  rate.Every(time.Second),
		TriggerBurst: 1,
	}
}

// Compactor performs k-way merges of a store's sealed segments,
// dropping tombstoned and superseded records and, when the store's
// active codec has changed, migrating surviving records onto it.
type Compactor struct {
	store   *Store
	opts    CompactorOptions
	limiter *rate.Limiter
}

// NewCompactor builds a Compactor for store.
func NewCompactor(store *Store, opts CompactorOptions) *Compactor {
	limit := opts.TriggerRate
	if limit == 0 {
		limit = rate.Inf
	}
	burst := opts.TriggerBurst
	if burst <= 0 {
		burst = 1
	}
	return &Compactor{
		store:   store,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// MaybeCompact runs one compaction pass if the segment count has
// crossed the configured threshold and the trigger rate allows it.
// Returns false if no merge was performed.
func (c *Compactor) MaybeCompact(ctx context.Context) (bool, error) {
	_, segs := c.store.Snapshot()
	defer func() {
		for _, seg := range segs {
			c.store.ReleaseSegment(seg)
		}
	}()

	if len(segs) < c.opts.MinSegments {
		return false, nil
	}
	if !c.limiter.Allow() {
		return false, nil
	}

	return true, c.merge(ctx, segs)
}

// merge performs a k-way merge across segs, keeping for each id only
// the highest-sequence record and dropping it entirely when that
// record is a tombstone, and writes the result as one new segment
// installed atomically in place of the merged set. ctx is checked
// before each segment is read; a cancelled merge returns ctx.Err()
// before anything is written, leaving the manifest unchanged.
func (c *Compactor) merge(ctx context.Context, segs []*Segment) error {
	latest := make(map[string]*Record)

	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return err
		}
		decodeCodec := c.store.codecForHash(seg.CodecHash())
		records, err := seg.Records(decodeCodec)
		if err != nil {
			continue // a corrupt segment is skipped, not fatal to the merge
		}
		for _, rec := range records {
			key := string(rec.ID)
			if existing, ok := latest[key]; !ok || rec.Sequence > existing.Sequence {
				latest[key] = rec
			}
		}
	}

	merged := make([]*Record, 0, len(latest))
	for _, rec := range latest {
		if rec.Tombstone {
			continue
		}
		merged = append(merged, c.reencode(rec))
	}
	sort.Slice(merged, func(i, j int) bool { return string(merged[i].ID) < string(merged[j].ID) })

	segID := c.store.AllocateSegmentID()
	path := filepath.Join(c.store.Dir(), fmt.Sprintf("segment-%020d.sdbs", segID))

	codec := c.currentCodec()
	hasNorms := c.store.hasNorms
	if err := WriteSegment(path, segID, c.store.dim, merged, codec, hasNorms); err != nil {
		return err
	}

	newSeg, err := OpenSegment(segID, path)
	if err != nil {
		return err
	}

	return c.store.replaceSegments(segs, newSeg)
}

func (c *Compactor) currentCodec() Codec {
	return c.store.codec
}

// reencode rewrites rec through the store's current codec when the
// record's segment used a different one (or none), so compaction
// doubles as codec migration. Records already decoded to a raw vector
// by Records() carry enough information to re-derive codes; records
// that have no vector (PQ records whose segment codec is not
// registered) pass through untouched.
func (c *Compactor) reencode(rec *Record) *Record {
	codec := c.currentCodec()
	if codec == nil || rec.Vector == nil {
		return rec
	}
	out := rec.Clone()
	out.Codes = codec.Encode(rec.Vector)
	return out
}
