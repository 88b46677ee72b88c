// Package config holds the engine's own configuration structuring:
// how a Store, its HNSW index, its PQ codec, and its compactor are
// parameterized. It does not load any particular file format — only
// defaults and environment-variable overrides, in the teacher's style.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every tunable of an embedded engine instance.
type Config struct {
	Store        StoreConfig
	HNSW         HNSWConfig
	Quantization QuantizationConfig
	Compaction   CompactionConfig
}

// StoreConfig controls the segmented log and memtable.
type StoreConfig struct {
	DataDir       string // root directory for segments and the manifest
	Dimensions    int    // vector dimension (required, no default)
	Metric        string // euclidean, manhattan, cosine, dot, angular
	MaxMemRecords int    // memtable record count that triggers seal
	MaxMemBytes   int    // memtable byte size that triggers seal
}

// HNSWConfig controls the ANN index.
type HNSWConfig struct {
	M               int // bidirectional links per node (typical: 16-32)
	EfConstruction  int // candidate list size while inserting (typical: 200)
	DefaultEfSearch int // candidate list size for a search with no override
}

// QuantizationConfig controls PQ training and encoding.
type QuantizationConfig struct {
	Enabled            bool
	NumSubvectors      int // m: dimensions must divide evenly by this
	BitsPerCode        int // bits per subvector code, typically 8
	TrainingIterations int // Lloyd iterations during codebook training
}

// CompactionConfig controls the background merge trigger.
type CompactionConfig struct {
	MinSegments       int // sealed segment count that triggers a merge
	TriggerIntervalMs int // minimum milliseconds between merges, 0 = unlimited
}

// Default returns recommended defaults. Dimensions is left at 0 and
// must be set explicitly — there is no sane default vector width.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DataDir:       "./data",
			Metric:        "euclidean",
			MaxMemRecords: 100_000,
			MaxMemBytes:   64 << 20,
		},
		HNSW: HNSWConfig{
			M:               16,
			EfConstruction:  200,
			DefaultEfSearch: 50,
		},
		Quantization: QuantizationConfig{
			Enabled:            false,
			NumSubvectors:      16,
			BitsPerCode:        8,
			TrainingIterations: 25,
		},
		Compaction: CompactionConfig{
			MinSegments:       4,
			TriggerIntervalMs: 1000,
		},
	}
}

// LoadFromEnv loads configuration from environment variables,
// falling back to Default for anything unset or malformed.
func LoadFromEnv() *Config {
	cfg := Default()

	if dataDir := os.Getenv("VECTORDB_DATA_DIR"); dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	if metric := os.Getenv("VECTORDB_METRIC"); metric != "" {
		cfg.Store.Metric = metric
	}
	if dims := os.Getenv("VECTORDB_DIMENSIONS"); dims != "" {
		if d, err := strconv.Atoi(dims); err == nil {
			cfg.Store.Dimensions = d
		}
	}
	if mr := os.Getenv("VECTORDB_MAX_MEM_RECORDS"); mr != "" {
		if v, err := strconv.Atoi(mr); err == nil {
			cfg.Store.MaxMemRecords = v
		}
	}
	if mb := os.Getenv("VECTORDB_MAX_MEM_BYTES"); mb != "" {
		if v, err := strconv.Atoi(mb); err == nil {
			cfg.Store.MaxMemBytes = v
		}
	}

	if m := os.Getenv("VECTORDB_HNSW_M"); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			cfg.HNSW.M = v
		}
	}
	if ef := os.Getenv("VECTORDB_HNSW_EF_CONSTRUCTION"); ef != "" {
		if v, err := strconv.Atoi(ef); err == nil {
			cfg.HNSW.EfConstruction = v
		}
	}
	if ef := os.Getenv("VECTORDB_HNSW_DEFAULT_EF_SEARCH"); ef != "" {
		if v, err := strconv.Atoi(ef); err == nil {
			cfg.HNSW.DefaultEfSearch = v
		}
	}

	if pq := os.Getenv("VECTORDB_PQ_ENABLED"); pq == "true" {
		cfg.Quantization.Enabled = true
	}
	if m := os.Getenv("VECTORDB_PQ_SUBVECTORS"); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			cfg.Quantization.NumSubvectors = v
		}
	}
	if bits := os.Getenv("VECTORDB_PQ_BITS"); bits != "" {
		if v, err := strconv.Atoi(bits); err == nil {
			cfg.Quantization.BitsPerCode = v
		}
	}
	if iters := os.Getenv("VECTORDB_PQ_ITERATIONS"); iters != "" {
		if v, err := strconv.Atoi(iters); err == nil {
			cfg.Quantization.TrainingIterations = v
		}
	}

	if ms := os.Getenv("VECTORDB_COMPACTION_MIN_SEGMENTS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Compaction.MinSegments = v
		}
	}
	if interval := os.Getenv("VECTORDB_COMPACTION_INTERVAL_MS"); interval != "" {
		if v, err := strconv.Atoi(interval); err == nil {
			cfg.Compaction.TriggerIntervalMs = v
		}
	}

	return cfg
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Store.DataDir == "" {
		return fmt.Errorf("data directory not specified")
	}
	if c.Store.Dimensions < 1 {
		return fmt.Errorf("invalid dimensions: %d (must be > 0)", c.Store.Dimensions)
	}
	switch c.Store.Metric {
	case "euclidean", "manhattan", "cosine", "dot", "angular":
	default:
		return fmt.Errorf("invalid metric: %q", c.Store.Metric)
	}

	if c.HNSW.M < 2 || c.HNSW.M > 100 {
		return fmt.Errorf("invalid HNSW M: %d (recommended: 16)", c.HNSW.M)
	}
	if c.HNSW.EfConstruction < 10 {
		return fmt.Errorf("invalid HNSW efConstruction: %d (must be >= 10)", c.HNSW.EfConstruction)
	}

	if c.Quantization.Enabled {
		if c.Quantization.NumSubvectors < 1 || c.Store.Dimensions%c.Quantization.NumSubvectors != 0 {
			return fmt.Errorf("quantization subvector count %d must evenly divide dimensions %d", c.Quantization.NumSubvectors, c.Store.Dimensions)
		}
		if c.Quantization.BitsPerCode < 1 || c.Quantization.BitsPerCode > 16 {
			return fmt.Errorf("invalid PQ bits per code: %d", c.Quantization.BitsPerCode)
		}
	}

	if c.Compaction.MinSegments < 2 {
		return fmt.Errorf("invalid compaction MinSegments: %d (must be >= 2)", c.Compaction.MinSegments)
	}

	return nil
}
