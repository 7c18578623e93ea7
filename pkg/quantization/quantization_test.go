package quantization

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(r.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func TestScalarQuantizer_EncodeBeforeTrain_Fails(t *testing.T) {
	sq, err := NewScalarQuantizer(4, 8)
	require.NoError(t, err)

	_, err = sq.Encode([]float32{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestScalarQuantizer_RoundTrip_WithinTolerance(t *testing.T) {
	samples := randomVectors(50, 8, 1)
	sq, err := NewScalarQuantizer(8, 8)
	require.NoError(t, err)
	require.NoError(t, sq.Train(samples))

	original := samples[0]
	code, err := sq.Encode(original)
	require.NoError(t, err)

	decoded, err := sq.Decode(code)
	require.NoError(t, err)

	for i := range original {
		assert.InDelta(t, original[i], decoded[i], 0.1)
	}
}

func TestScalarQuantizer_Stats_ReportsCompressionRatio(t *testing.T) {
	sq, err := NewScalarQuantizer(8, 8)
	require.NoError(t, err)
	stats := sq.Stats()
	assert.Equal(t, float32(4.0), stats.CompressionRatio)
	assert.False(t, stats.Trained)
}

func TestProductQuantizer_DimensionNotDivisible_Fails(t *testing.T) {
	_, err := NewProductQuantizer(10, 3, 16)
	assert.Error(t, err)
}

func TestProductQuantizer_TrainEncodeDecode(t *testing.T) {
	samples := randomVectors(200, 8, 2)
	pq, err := NewProductQuantizer(8, 4, 16)
	require.NoError(t, err)
	require.NoError(t, pq.Train(samples))

	code, err := pq.Encode(samples[0])
	require.NoError(t, err)
	assert.Len(t, code, 4)

	decoded, err := pq.Decode(code)
	require.NoError(t, err)
	assert.Len(t, decoded, 8)
}

func TestProductQuantizer_EncodeBeforeTrain_Fails(t *testing.T) {
	pq, err := NewProductQuantizer(8, 4, 16)
	require.NoError(t, err)
	_, err = pq.Encode(make([]float32, 8))
	assert.ErrorIs(t, err, ErrNotTrained)
}
