package quantization

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// ScalarQuantizer performs per-dimension uniform quantization to b bits
// (1 <= b <= 16), adapted from the teacher's ScalarQuantizer: train
// learns per-dimension min/max from a sample, encode maps linearly into
// [0, 2^b-1] and packs the result into bits, decode applies the inverse.
type ScalarQuantizer struct {
	dimension int
	bits      int
	min       []float32
	max       []float32
	trained   bool
}

// NewScalarQuantizer creates an untrained quantizer for the given
// dimension and bit width.
func NewScalarQuantizer(dimension, bits int) (*ScalarQuantizer, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if bits < 1 || bits > 16 {
		return nil, fmt.Errorf("bits must be in [1, 16], got %d", bits)
	}
	return &ScalarQuantizer{
		dimension: dimension,
		bits:      bits,
		min:       make([]float32, dimension),
		max:       make([]float32, dimension),
	}, nil
}

func (sq *ScalarQuantizer) Train(samples [][]float32) error {
	if len(samples) == 0 {
		return fmt.Errorf("scalar quantizer: no training samples provided")
	}
	for d := 0; d < sq.dimension; d++ {
		sq.min[d] = samples[0][d]
		sq.max[d] = samples[0][d]
	}
	for _, vec := range samples {
		if len(vec) != sq.dimension {
			return fmt.Errorf("scalar quantizer: sample dimension %d doesn't match %d", len(vec), sq.dimension)
		}
		for d := 0; d < sq.dimension; d++ {
			if vec[d] < sq.min[d] {
				sq.min[d] = vec[d]
			}
			if vec[d] > sq.max[d] {
				sq.max[d] = vec[d]
			}
		}
	}
	for d := 0; d < sq.dimension; d++ {
		if sq.max[d] == sq.min[d] {
			sq.max[d] += 1e-6
		}
	}
	sq.trained = true
	return nil
}

func (sq *ScalarQuantizer) Encode(vector []float32) ([]byte, error) {
	if !sq.trained {
		return nil, ErrNotTrained
	}
	if len(vector) != sq.dimension {
		return nil, fmt.Errorf("scalar quantizer: vector dimension %d doesn't match %d", len(vector), sq.dimension)
	}

	maxVal := float32((1 << uint(sq.bits)) - 1)
	bitsNeeded := sq.dimension * sq.bits
	encoded := make([]byte, (bitsNeeded+7)/8)

	bitOffset := 0
	for d := 0; d < sq.dimension; d++ {
		normalized := (vector[d] - sq.min[d]) / (sq.max[d] - sq.min[d])
		if normalized < 0 {
			normalized = 0
		} else if normalized > 1 {
			normalized = 1
		}
		quantized := uint32(normalized * maxVal)
		for b := 0; b < sq.bits; b++ {
			byteIdx := bitOffset / 8
			bitIdx := bitOffset % 8
			if quantized&(1<<uint(b)) != 0 {
				encoded[byteIdx] |= 1 << uint(bitIdx)
			}
			bitOffset++
		}
	}
	return encoded, nil
}

func (sq *ScalarQuantizer) Decode(code []byte) ([]float32, error) {
	if !sq.trained {
		return nil, ErrNotTrained
	}
	maxVal := float32((1 << uint(sq.bits)) - 1)
	vector := make([]float32, sq.dimension)

	bitOffset := 0
	for d := 0; d < sq.dimension; d++ {
		var quantized uint32
		for b := 0; b < sq.bits; b++ {
			byteIdx := bitOffset / 8
			bitIdx := bitOffset % 8
			if byteIdx >= len(code) {
				return nil, fmt.Errorf("scalar quantizer: encoded data too short")
			}
			if code[byteIdx]&(1<<uint(bitIdx)) != 0 {
				quantized |= 1 << uint(b)
			}
			bitOffset++
		}
		normalized := float32(quantized) / maxVal
		vector[d] = normalized*(sq.max[d]-sq.min[d]) + sq.min[d]
	}
	return vector, nil
}

func (sq *ScalarQuantizer) Dimensions() int { return sq.dimension }

func (sq *ScalarQuantizer) Stats() Stats {
	return Stats{
		Type:             "scalar",
		Dimensions:       sq.dimension,
		CompressionRatio: float32(sq.dimension*32) / float32(sq.dimension*sq.bits),
		Trained:          sq.trained,
	}
}

func (sq *ScalarQuantizer) Close() error { return nil }

// scalarQuantizerState is the gob-serializable mirror of ScalarQuantizer,
// used by the persistence manager's quantizer-state section.
type scalarQuantizerState struct {
	Dimension int
	Bits      int
	Min       []float32
	Max       []float32
	Trained   bool
}

// MarshalBinary serializes the trained per-dimension min/max bounds.
func (sq *ScalarQuantizer) MarshalBinary() ([]byte, error) {
	state := scalarQuantizerState{
		Dimension: sq.dimension,
		Bits:      sq.bits,
		Min:       sq.min,
		Max:       sq.max,
		Trained:   sq.trained,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("scalar quantizer: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a quantizer previously produced by
// MarshalBinary.
func (sq *ScalarQuantizer) UnmarshalBinary(data []byte) error {
	var state scalarQuantizerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("scalar quantizer: unmarshal: %w", err)
	}
	sq.dimension = state.Dimension
	sq.bits = state.Bits
	sq.min = state.Min
	sq.max = state.Max
	sq.trained = state.Trained
	return nil
}
