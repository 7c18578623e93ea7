package quantization

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
)

// ProductQuantizer partitions a vector into M equal subvectors and learns
// one k-means codebook of K centroids per subspace, adapted from the
// teacher's ProductQuantizer. Encode maps each subvector to its nearest
// centroid index; decode reconstructs from the codebook.
type ProductQuantizer struct {
	subvectors int // M: number of subspaces
	centroids  int // K: centroids per subspace
	dimension  int // D
	subDim     int // D / M
	codebooks  [][][]float32
	trained    bool
}

// NewProductQuantizer creates an untrained PQ instance. dimension must be
// divisible by subvectors; centroids must fit in a byte code (<= 256).
func NewProductQuantizer(dimension, subvectors, centroids int) (*ProductQuantizer, error) {
	if subvectors <= 0 || dimension%subvectors != 0 {
		return nil, fmt.Errorf("dimension %d must be divisible by subvectors %d", dimension, subvectors)
	}
	if centroids <= 0 || centroids > 256 {
		return nil, fmt.Errorf("centroids must be in (0, 256], got %d", centroids)
	}
	return &ProductQuantizer{
		subvectors: subvectors,
		centroids:  centroids,
		dimension:  dimension,
		subDim:     dimension / subvectors,
		codebooks:  make([][][]float32, subvectors),
	}, nil
}

func (pq *ProductQuantizer) Train(samples [][]float32) error {
	if len(samples) < pq.centroids {
		return fmt.Errorf("product quantizer: need at least %d samples, got %d", pq.centroids, len(samples))
	}
	for m := 0; m < pq.subvectors; m++ {
		sub := make([][]float32, len(samples))
		start := m * pq.subDim
		end := start + pq.subDim
		for i, vec := range samples {
			if len(vec) != pq.dimension {
				return fmt.Errorf("product quantizer: sample dimension %d doesn't match %d", len(vec), pq.dimension)
			}
			sub[i] = vec[start:end]
		}
		centroids, err := kMeans(sub, pq.centroids, 20)
		if err != nil {
			return fmt.Errorf("product quantizer: k-means failed for subspace %d: %w", m, err)
		}
		pq.codebooks[m] = centroids
	}
	pq.trained = true
	return nil
}

func (pq *ProductQuantizer) Encode(vector []float32) ([]byte, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(vector) != pq.dimension {
		return nil, fmt.Errorf("product quantizer: vector dimension %d doesn't match %d", len(vector), pq.dimension)
	}
	codes := make([]byte, pq.subvectors)
	for m := 0; m < pq.subvectors; m++ {
		start := m * pq.subDim
		sub := vector[start : start+pq.subDim]
		minDist := float32(math.MaxFloat32)
		minIdx := 0
		for k := 0; k < pq.centroids; k++ {
			dist := sqEuclidean(sub, pq.codebooks[m][k])
			if dist < minDist {
				minDist = dist
				minIdx = k
			}
		}
		codes[m] = byte(minIdx)
	}
	return codes, nil
}

func (pq *ProductQuantizer) Decode(code []byte) ([]float32, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(code) != pq.subvectors {
		return nil, fmt.Errorf("product quantizer: code length %d doesn't match %d subspaces", len(code), pq.subvectors)
	}
	vector := make([]float32, pq.dimension)
	for m := 0; m < pq.subvectors; m++ {
		idx := int(code[m])
		if idx >= pq.centroids {
			return nil, fmt.Errorf("product quantizer: invalid code %d for subspace %d", idx, m)
		}
		copy(vector[m*pq.subDim:(m+1)*pq.subDim], pq.codebooks[m][idx])
	}
	return vector, nil
}

func (pq *ProductQuantizer) Dimensions() int { return pq.dimension }

func (pq *ProductQuantizer) Stats() Stats {
	return Stats{
		Type:             "product",
		Dimensions:       pq.dimension,
		CompressionRatio: float32(pq.dimension*4) / float32(pq.subvectors),
		Trained:          pq.trained,
	}
}

func (pq *ProductQuantizer) Close() error { return nil }

// productQuantizerState is the gob-serializable mirror of
// ProductQuantizer, used by the persistence manager's quantizer-state
// section.
type productQuantizerState struct {
	Subvectors int
	Centroids  int
	Dimension  int
	SubDim     int
	Codebooks  [][][]float32
	Trained    bool
}

// MarshalBinary serializes the trained per-subspace codebooks.
func (pq *ProductQuantizer) MarshalBinary() ([]byte, error) {
	state := productQuantizerState{
		Subvectors: pq.subvectors,
		Centroids:  pq.centroids,
		Dimension:  pq.dimension,
		SubDim:     pq.subDim,
		Codebooks:  pq.codebooks,
		Trained:    pq.trained,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("product quantizer: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a quantizer previously produced by
// MarshalBinary.
func (pq *ProductQuantizer) UnmarshalBinary(data []byte) error {
	var state productQuantizerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("product quantizer: unmarshal: %w", err)
	}
	pq.subvectors = state.Subvectors
	pq.centroids = state.Centroids
	pq.dimension = state.Dimension
	pq.subDim = state.SubDim
	pq.codebooks = state.Codebooks
	pq.trained = state.Trained
	return nil
}

// kMeans runs Lloyd's algorithm with random-sample initial centroids.
func kMeans(vectors [][]float32, k, maxIters int) ([][]float32, error) {
	if len(vectors) < k {
		return nil, fmt.Errorf("need at least %d vectors, got %d", k, len(vectors))
	}
	dim := len(vectors[0])

	centroids := make([][]float32, k)
	perm := rand.Perm(len(vectors))
	for i := 0; i < k; i++ {
		centroids[i] = make([]float32, dim)
		copy(centroids[i], vectors[perm[i]])
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			minIdx := 0
			for j, c := range centroids {
				dist := sqEuclidean(vec, c)
				if dist < minDist {
					minDist = dist
					minIdx = j
				}
			}
			if assignments[i] != minIdx {
				changed = true
				assignments[i] = minIdx
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		for i := range centroids {
			centroids[i] = make([]float32, dim)
		}
		for i, vec := range vectors {
			cluster := assignments[i]
			counts[cluster]++
			for j := 0; j < dim; j++ {
				centroids[cluster][j] += vec[j]
			}
		}
		for i := range centroids {
			if counts[i] > 0 {
				for j := 0; j < dim; j++ {
					centroids[i][j] /= float32(counts[i])
				}
			}
		}
	}
	return centroids, nil
}

func sqEuclidean(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
