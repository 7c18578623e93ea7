package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity_IdenticalVectors_ReturnsOne(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarity_ZeroVector_ReturnsZero(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestCosineSimilarity_MismatchedLength_ReturnsError(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestCosineDistance_IsClampedToZeroTwo(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 1e-9)
}

func TestEuclideanDistance_IsAMetric(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	c := []float32{6, 8}

	dab, err := EuclideanDistance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, dab, 1e-9)

	dba, err := EuclideanDistance(b, a)
	require.NoError(t, err)
	assert.Equal(t, dab, dba, "euclidean distance must be symmetric")

	dac, err := EuclideanDistance(a, c)
	require.NoError(t, err)
	dbc, err := EuclideanDistance(b, c)
	require.NoError(t, err)
	assert.LessOrEqual(t, dac, dab+dbc+1e-9, "triangle inequality")
}

func TestManhattanAndChebyshev(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}

	manhattan, err := ManhattanDistance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, manhattan, 1e-9)

	chebyshev, err := ChebyshevDistance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, chebyshev, 1e-9)
}

func TestHammingAndJaccard_Binarize(t *testing.T) {
	a := []float32{1, -1, 1, 0}
	b := []float32{1, 1, -1, 0}

	hamming, err := HammingDistance(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2.0, hamming)

	jaccard, err := JaccardDistance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, jaccard, 1e-9)
}

func TestJaccardDistance_BothZero_ReturnsZero(t *testing.T) {
	d, err := JaccardDistance([]float32{0, 0}, []float32{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestNormalizeL2_UnitNorm(t *testing.T) {
	v := NormalizeL2([]float32{3, 4})
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-6)
}

func TestNormalizeL2_ZeroVector_Unchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	out := NormalizeL2(v)
	assert.Equal(t, v, out)
}

func TestBatchCosineSimilarity_MatchesScalarVersion(t *testing.T) {
	query := []float32{1, 2, 3}
	corpus := [][]float32{{1, 2, 3}, {0, 0, 0}, {-1, -2, -3}}

	batch, err := BatchCosineSimilarity(query, corpus)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, v := range corpus {
		single, err := CosineSimilarity(query, v)
		require.NoError(t, err)
		assert.InDelta(t, single, batch[i], 1e-9)
	}
}

func TestDistance_DotProduct_SmallerIsCloser(t *testing.T) {
	closer, err := Distance(DotProduct, []float32{1, 1}, []float32{1, 1})
	require.NoError(t, err)
	farther, err := Distance(DotProduct, []float32{1, 1}, []float32{-1, -1})
	require.NoError(t, err)
	assert.Less(t, closer, farther)
}
