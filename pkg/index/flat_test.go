package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vecdb/vecdb/pkg/distance"
)

func TestFlatIndex_SearchReturnsNearestInAscendingOrder(t *testing.T) {
	idx := NewFlatIndex(distance.Euclidean)

	vectors := map[string][]float32{
		"vec1": {1.0, 0.0, 0.0, 0.0},
		"vec2": {0.0, 1.0, 0.0, 0.0},
		"vec3": {0.0, 0.0, 1.0, 0.0},
		"vec4": {0.5, 0.5, 0.0, 0.0},
	}
	for id, v := range vectors {
		require.NoError(t, idx.Insert(id, v))
	}
	require.Equal(t, 4, idx.Size())

	results, err := idx.Search([]float32{0.9, 0.1, 0.0, 0.0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "vec1", results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestFlatIndex_SearchContainsInsertedSelf(t *testing.T) {
	idx := NewFlatIndex(distance.Cosine)
	v := []float32{1, 2, 3, 4}
	require.NoError(t, idx.Insert("self", v))

	results, err := idx.Search(v, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "self", results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestFlatIndex_DeleteHidesFromSearch(t *testing.T) {
	idx := NewFlatIndex(distance.Euclidean)
	require.NoError(t, idx.Insert("a", []float32{0, 0}))
	require.NoError(t, idx.Insert("b", []float32{10, 10}))

	require.NoError(t, idx.Delete("a"))
	assert.Equal(t, 1, idx.Size())

	results, err := idx.Search([]float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestFlatIndex_DimensionMismatchRejected(t *testing.T) {
	idx := NewFlatIndex(distance.Euclidean)
	require.NoError(t, idx.Insert("a", []float32{1, 2, 3}))

	err := idx.Insert("b", []float32{1, 2})
	assert.Error(t, err)

	_, err = idx.Search([]float32{1, 2}, 1)
	assert.Error(t, err)
}

func TestFlatIndex_RangeSearchRespectsRadius(t *testing.T) {
	idx := NewFlatIndex(distance.Euclidean)
	require.NoError(t, idx.Insert("near", []float32{0, 0}))
	require.NoError(t, idx.Insert("far", []float32{100, 100}))

	results, err := idx.RangeSearch([]float32{0, 0}, 5.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].ID)
}

func TestFlatIndex_ReinsertOverwritesVector(t *testing.T) {
	idx := NewFlatIndex(distance.Euclidean)
	require.NoError(t, idx.Insert("a", []float32{0, 0}))
	require.NoError(t, idx.Insert("a", []float32{5, 5}))
	assert.Equal(t, 1, idx.Size())

	results, err := idx.Search([]float32{5, 5}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestFlatIndex_Stats(t *testing.T) {
	idx := NewFlatIndex(distance.Cosine)
	require.NoError(t, idx.Insert("a", []float32{1, 2, 3}))

	stats := idx.Stats()
	assert.Equal(t, "flat", stats["type"])
	assert.Equal(t, "cosine", stats["metric"])
	assert.Equal(t, 3, stats["dimensions"])
	assert.Equal(t, 1, stats["vector_count"])
}
