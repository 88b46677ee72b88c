package quantization

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/therealutkarshpriyadarshi/vectordb/pkg/distance"
)

// ProductQuantizer performs product quantization for high compression
// ratios: 96-384x for 768-dim vectors with the configurations listed
// on NewProductQuantizer.
//
// Product Quantization divides vectors into m subvectors and
// quantizes each independently using k-means clustering, enabling
// high compression, asymmetric distance computation, and a
// compression/accuracy knob via m and bitsPerCode.
type ProductQuantizer struct {
	numSubvectors int           // Number of subvectors (m)
	bitsPerCode   int           // Bits per code (typically 6-8)
	codebooks     [][][]float32 // codebooks[subvector][code] = centroid
	subvectorDim  int           // Dimensions per subvector
	config        *Config
	hash          [16]byte // content hash of the trained codebook; zero until Train/Deserialize
}

// NewProductQuantizer creates a new product quantizer using the
// default (euclidean) metric.
//
// Typical configurations:
//   - 8 subvectors, 8 bits: 8 bytes per vector (384x compression for 768-dim)
//   - 16 subvectors, 6 bits: 16 bytes per vector (192x compression for 768-dim)
//   - 32 subvectors, 8 bits: 32 bytes per vector (96x compression for 768-dim)
func NewProductQuantizer(numSubvectors, bitsPerCode int) *ProductQuantizer {
	return NewProductQuantizerWithConfig(numSubvectors, bitsPerCode, DefaultConfig())
}

// NewProductQuantizerWithMetric creates a PQ codec for a specific
// distance metric, keeping the rest of the configuration default.
func NewProductQuantizerWithMetric(numSubvectors, bitsPerCode int, metric distance.Metric) *ProductQuantizer {
	cfg := DefaultConfig()
	cfg.Metric = metric
	return NewProductQuantizerWithConfig(numSubvectors, bitsPerCode, cfg)
}

// NewProductQuantizerWithConfig creates a PQ with custom configuration.
func NewProductQuantizerWithConfig(numSubvectors, bitsPerCode int, config *Config) *ProductQuantizer {
	return &ProductQuantizer{
		numSubvectors: numSubvectors,
		bitsPerCode:   bitsPerCode,
		codebooks:     make([][][]float32, numSubvectors),
		config:        config,
	}
}

// Train trains the product quantizer using k-means on subvectors.
//
// Fails with ErrInvalidShape if dim is not divisible by m, and with
// ErrInsufficientTrainingData if any subspace has fewer than k
// distinct points for k = 2^bitsPerCode centroids.
func (pq *ProductQuantizer) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("%w: no training data provided", ErrInvalidShape)
	}

	dimensions := len(vectors[0])
	if dimensions%pq.numSubvectors != 0 {
		return fmt.Errorf("%w: dimensions (%d) must be divisible by numSubvectors (%d)",
			ErrInvalidShape, dimensions, pq.numSubvectors)
	}

	pq.subvectorDim = dimensions / pq.numSubvectors
	numCodes := 1 << pq.bitsPerCode // 2^bitsPerCode

	if pq.config.Verbose {
		fmt.Printf("Training Product Quantizer:\n")
		fmt.Printf("  Dimensions: %d\n", dimensions)
		fmt.Printf("  Subvectors: %d (dim=%d each)\n", pq.numSubvectors, pq.subvectorDim)
		fmt.Printf("  Codes per subvector: %d (%d bits)\n", numCodes, pq.bitsPerCode)
		fmt.Printf("  Compression: %.1fx\n", pq.GetCompressionRatio(dimensions))
	}

	for sv := 0; sv < pq.numSubvectors; sv++ {
		if pq.config.Verbose {
			fmt.Printf("  Training codebook %d/%d...\n", sv+1, pq.numSubvectors)
		}

		startDim := sv * pq.subvectorDim
		endDim := (sv + 1) * pq.subvectorDim

		subvectors := make([][]float32, len(vectors))
		for i, vec := range vectors {
			subvectors[i] = make([]float32, pq.subvectorDim)
			copy(subvectors[i], vec[startDim:endDim])
		}

		if distinctCount(subvectors) < numCodes {
			return fmt.Errorf("%w: subvector %d has fewer than %d distinct training points",
				ErrInsufficientTrainingData, sv, numCodes)
		}

		centroids, err := KMeansPlusPlus(subvectors, numCodes, pq.config)
		if err != nil {
			return fmt.Errorf("k-means failed for subvector %d: %w", sv, err)
		}

		pq.codebooks[sv] = centroids
	}

	pq.hash = pq.contentHash()

	if pq.config.Verbose {
		fmt.Printf("Training complete!\n")
	}

	return nil
}

// Hash returns the content hash identifying this trained codebook,
// SHA-256 truncated to 16 bytes. It is the zero value until Train or
// Deserialize has run.
func (pq *ProductQuantizer) Hash() [16]byte {
	return pq.hash
}

func (pq *ProductQuantizer) contentHash() [16]byte {
	h := sha256.New()
	binary.Write(h, binary.LittleEndian, uint32(pq.numSubvectors))
	binary.Write(h, binary.LittleEndian, uint32(pq.bitsPerCode))
	binary.Write(h, binary.LittleEndian, uint32(pq.subvectorDim))
	for _, codebook := range pq.codebooks {
		for _, centroid := range codebook {
			for _, f := range centroid {
				binary.Write(h, binary.LittleEndian, math.Float32bits(f))
			}
		}
	}
	sum := h.Sum(nil)
	var out [16]byte
	copy(out[:], sum[:16])
	return out
}

// Encode encodes a vector into product quantization codes.
func (pq *ProductQuantizer) Encode(vector []float32) []byte {
	codes := make([]byte, pq.numSubvectors)

	for sv := 0; sv < pq.numSubvectors; sv++ {
		startDim := sv * pq.subvectorDim
		endDim := (sv + 1) * pq.subvectorDim
		subvector := vector[startDim:endDim]

		minDist := float32(math.MaxFloat32)
		minCode := 0

		for code, centroid := range pq.codebooks[sv] {
			dist := nearestCentroidDistance(subvector, centroid)
			if dist < minDist {
				minDist = dist
				minCode = code
			}
		}

		codes[sv] = byte(minCode)
	}

	return codes
}

// Decode decodes product quantization codes back to a vector.
func (pq *ProductQuantizer) Decode(codes []byte) []float32 {
	if len(codes) != pq.numSubvectors {
		return nil
	}

	vector := make([]float32, pq.numSubvectors*pq.subvectorDim)

	for sv := 0; sv < pq.numSubvectors; sv++ {
		code := codes[sv]
		if int(code) >= len(pq.codebooks[sv]) {
			continue
		}

		centroid := pq.codebooks[sv][code]
		startDim := sv * pq.subvectorDim
		copy(vector[startDim:startDim+pq.subvectorDim], centroid)
	}

	return vector
}

// ComputeDistanceTable precomputes a per-subspace distance table for
// asymmetric distance computation: the key optimization for fast
// search with product quantization.
//
// For euclidean/manhattan/dot, distTable[sv][code] holds the
// per-subspace contribution to the whole-vector distance. For
// cosine/angular, distTable[sv][code] holds the raw dot product of
// the query subvector against the centroid, which AsymmetricDistance
// combines with the supplied norms.
func (pq *ProductQuantizer) ComputeDistanceTable(query []float32) interface{} {
	distTable := make([][]float32, pq.numSubvectors)

	for sv := 0; sv < pq.numSubvectors; sv++ {
		startDim := sv * pq.subvectorDim
		endDim := (sv + 1) * pq.subvectorDim
		querySubvector := query[startDim:endDim]

		numCodes := len(pq.codebooks[sv])
		distTable[sv] = make([]float32, numCodes)

		for code, centroid := range pq.codebooks[sv] {
			distTable[sv][code] = subspaceTableEntry(pq.config.Metric, querySubvector, centroid)
		}
	}

	return distTable
}

// AsymmetricDistance computes the distance between a query and an
// encoded vector using a precomputed distance table.
//
// Time complexity O(m) vs O(dim) for exact distance in the original
// space — the entire point of product quantization.
//
// For cosine/angular, norms must supply (queryNorm, recordNorm); the
// approximate dot product is reconstructed from the table and
// combined with the norms the same way the exact metric would.
func (pq *ProductQuantizer) AsymmetricDistance(distTableInterface interface{}, codes []byte, norms ...float32) float32 {
	distTable := distTableInterface.([][]float32)

	if len(codes) != pq.numSubvectors {
		return float32(math.MaxFloat32)
	}

	var total float32
	for sv := 0; sv < pq.numSubvectors; sv++ {
		code := codes[sv]
		if int(code) >= len(distTable[sv]) {
			return float32(math.MaxFloat32)
		}
		total += distTable[sv][code]
	}

	switch pq.config.Metric {
	case distance.Euclidean:
		return float32(math.Sqrt(float64(total)))
	case distance.Manhattan, distance.Dot:
		return total
	case distance.Cosine, distance.Angular:
		if len(norms) < 2 || norms[0] == 0 || norms[1] == 0 {
			return 1.0
		}
		sim := total / (norms[0] * norms[1])
		if pq.config.Metric == distance.Cosine {
			return 1.0 - sim
		}
		if sim > 1 {
			sim = 1
		} else if sim < -1 {
			sim = -1
		}
		return float32(math.Acos(float64(sim)) / math.Pi)
	default:
		return total
	}
}

// SymmetricDistance computes the distance between two encoded
// vectors. Slower than asymmetric distance but useful when both
// operands are already compressed.
func (pq *ProductQuantizer) SymmetricDistance(codes1, codes2 []byte) float32 {
	if len(codes1) != pq.numSubvectors || len(codes2) != pq.numSubvectors {
		return float32(math.MaxFloat32)
	}

	var total float32
	for sv := 0; sv < pq.numSubvectors; sv++ {
		c1, c2 := codes1[sv], codes2[sv]
		if int(c1) >= len(pq.codebooks[sv]) || int(c2) >= len(pq.codebooks[sv]) {
			return float32(math.MaxFloat32)
		}

		centroid1 := pq.codebooks[sv][c1]
		centroid2 := pq.codebooks[sv][c2]

		dist := pq.config.Metric.Distance(centroid1, centroid2)
		if pq.config.Metric == distance.Euclidean {
			dist = dist * dist
		}
		total += dist
	}

	if pq.config.Metric == distance.Euclidean {
		return float32(math.Sqrt(float64(total)))
	}
	return total
}

// nearestCentroidDistance is the distance used to assign a vector to
// its nearest centroid during encoding. Assignment is always under L2,
// regardless of the codec's configured metric: the configured metric
// only governs how AsymmetricDistance/SymmetricDistance reconstruct a
// whole-vector distance from the resulting codes.
func nearestCentroidDistance(a, b []float32) float32 {
	return distance.Euclidean.Distance(a, b)
}

// subspaceTableEntry returns the value ComputeDistanceTable stores
// per (subspace, code): the summable contribution for decomposable
// metrics, or the raw dot product for cosine/angular.
func subspaceTableEntry(m distance.Metric, querySub, centroid []float32) float32 {
	switch m {
	case distance.Euclidean:
		var sum float32
		for d := range querySub {
			diff := querySub[d] - centroid[d]
			sum += diff * diff
		}
		return sum
	case distance.Manhattan:
		var sum float32
		for d := range querySub {
			diff := querySub[d] - centroid[d]
			if diff < 0 {
				diff = -diff
			}
			sum += diff
		}
		return sum
	case distance.Dot:
		var sum float32
		for d := range querySub {
			sum += querySub[d] * centroid[d]
		}
		return -sum
	case distance.Cosine, distance.Angular:
		var sum float32
		for d := range querySub {
			sum += querySub[d] * centroid[d]
		}
		return sum
	default:
		return 0
	}
}

// GetCompressionRatio returns the compression ratio relative to raw
// float32 storage.
func (pq *ProductQuantizer) GetCompressionRatio(originalDim int) float32 {
	originalBytes := float32(originalDim * 4)
	compressedBytes := float32(pq.numSubvectors)
	return originalBytes / compressedBytes
}

// GetMemoryUsage returns memory usage statistics.
func (pq *ProductQuantizer) GetMemoryUsage() (codebookBytes, perVectorBytes int) {
	numCodes := 1 << pq.bitsPerCode
	codebookBytes = pq.numSubvectors * numCodes * pq.subvectorDim * 4
	perVectorBytes = pq.numSubvectors
	return codebookBytes, perVectorBytes
}

// Serialize encodes the quantizer to the SDBC codebook file layout:
// header (magic, version, dim, m, nbits) followed by m arrays of
// 2^nbits centroids of length dim/m.
func (pq *ProductQuantizer) Serialize() ([]byte, error) {
	numCodes := 1 << pq.bitsPerCode
	dim := pq.numSubvectors * pq.subvectorDim

	const magic = "SDBC"
	const version = uint16(1)
	headerSize := 4 + 2 + 4 + 4 + 4 // magic, version, dim, m, nbits
	codebookSize := pq.numSubvectors * numCodes * pq.subvectorDim * 4
	data := make([]byte, headerSize+codebookSize)

	offset := 0
	copy(data[offset:], magic)
	offset += 4
	binary.LittleEndian.PutUint16(data[offset:], version)
	offset += 2
	binary.LittleEndian.PutUint32(data[offset:], uint32(dim))
	offset += 4
	binary.LittleEndian.PutUint32(data[offset:], uint32(pq.numSubvectors))
	offset += 4
	binary.LittleEndian.PutUint32(data[offset:], uint32(pq.bitsPerCode))
	offset += 4

	for sv := 0; sv < pq.numSubvectors; sv++ {
		for code := 0; code < numCodes; code++ {
			for d := 0; d < pq.subvectorDim; d++ {
				bits := math.Float32bits(pq.codebooks[sv][code][d])
				binary.LittleEndian.PutUint32(data[offset:], bits)
				offset += 4
			}
		}
	}

	return data, nil
}

// Deserialize decodes a quantizer from the SDBC codebook file layout.
func (pq *ProductQuantizer) Deserialize(data []byte) error {
	const headerSize = 4 + 2 + 4 + 4 + 4
	if len(data) < headerSize {
		return fmt.Errorf("%w: codebook data too short", ErrInvalidShape)
	}

	offset := 0
	if string(data[offset:offset+4]) != "SDBC" {
		return fmt.Errorf("%w: bad codebook magic", ErrInvalidShape)
	}
	offset += 4
	offset += 2 // version, unchecked for now
	dim := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	pq.numSubvectors = int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	pq.bitsPerCode = int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	if pq.numSubvectors == 0 {
		return fmt.Errorf("%w: zero subvectors in codebook", ErrInvalidShape)
	}
	pq.subvectorDim = dim / pq.numSubvectors

	numCodes := 1 << pq.bitsPerCode
	pq.codebooks = make([][][]float32, pq.numSubvectors)
	for sv := 0; sv < pq.numSubvectors; sv++ {
		pq.codebooks[sv] = make([][]float32, numCodes)
		for code := 0; code < numCodes; code++ {
			pq.codebooks[sv][code] = make([]float32, pq.subvectorDim)
			for d := 0; d < pq.subvectorDim; d++ {
				if offset+4 > len(data) {
					return fmt.Errorf("%w: unexpected end of codebook data", ErrInvalidShape)
				}
				bits := binary.LittleEndian.Uint32(data[offset:])
				pq.codebooks[sv][code][d] = math.Float32frombits(bits)
				offset += 4
			}
		}
	}

	if pq.config == nil {
		pq.config = DefaultConfig()
	}
	pq.hash = pq.contentHash()

	return nil
}

func (pq *ProductQuantizer) GetConfig() *Config { return pq.config }
func (pq *ProductQuantizer) SetConfig(c *Config) { pq.config = c }

func (pq *ProductQuantizer) GetNumSubvectors() int { return pq.numSubvectors }
func (pq *ProductQuantizer) GetSubvectorDim() int  { return pq.subvectorDim }
func (pq *ProductQuantizer) GetBitsPerCode() int   { return pq.bitsPerCode }

// GetCodebooks returns the codebooks (for external index integration).
func (pq *ProductQuantizer) GetCodebooks() [][][]float32 { return pq.codebooks }
