package index

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vecdb/vecdb/pkg/distance"
)

func randomVec(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func TestHNSWIndex_SearchContainsInsertedSelf(t *testing.T) {
	idx := NewHNSWIndex(distance.Euclidean, DefaultHNSWConfig())
	v := []float32{1, 2, 3, 4}
	require.NoError(t, idx.Insert("self", v))

	results, err := idx.Search(v, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "self", results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestHNSWIndex_EmptyIndexSearchReturnsEmpty(t *testing.T) {
	idx := NewHNSWIndex(distance.Euclidean, DefaultHNSWConfig())
	results, err := idx.Search([]float32{1, 2}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWIndex_DeleteHidesFromSearch(t *testing.T) {
	idx := NewHNSWIndex(distance.Euclidean, DefaultHNSWConfig())
	require.NoError(t, idx.Insert("a", []float32{0, 0}))
	require.NoError(t, idx.Insert("b", []float32{10, 10}))
	require.NoError(t, idx.Insert("c", []float32{20, 20}))

	require.NoError(t, idx.Delete("a"))
	assert.Equal(t, 2, idx.Size())

	results, err := idx.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestHNSWIndex_DeleteIsIdempotent(t *testing.T) {
	idx := NewHNSWIndex(distance.Euclidean, DefaultHNSWConfig())
	require.NoError(t, idx.Insert("a", []float32{0, 0}))
	require.NoError(t, idx.Delete("a"))
	require.NoError(t, idx.Delete("a"))
	assert.Equal(t, 0, idx.Size())
}

func TestHNSWIndex_DimensionMismatchRejected(t *testing.T) {
	idx := NewHNSWIndex(distance.Euclidean, DefaultHNSWConfig())
	require.NoError(t, idx.Insert("a", []float32{1, 2, 3}))

	err := idx.Insert("b", []float32{1, 2})
	assert.Error(t, err)
}

func TestHNSWIndex_RejectsNaNAndInf(t *testing.T) {
	idx := NewHNSWIndex(distance.Euclidean, DefaultHNSWConfig())
	assert.Error(t, idx.Insert("nan", []float32{float32(nanValue())}))
	assert.Error(t, idx.Insert("empty", []float32{}))
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestHNSWIndex_UpdateViaReinsertPreservesID(t *testing.T) {
	idx := NewHNSWIndex(distance.Euclidean, DefaultHNSWConfig())
	require.NoError(t, idx.Insert("a", []float32{0, 0}))
	require.NoError(t, idx.Insert("a", []float32{100, 100}))
	assert.Equal(t, 1, idx.Size())

	results, err := idx.Search([]float32{100, 100}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestHNSWIndex_Stats(t *testing.T) {
	idx := NewHNSWIndex(distance.Cosine, DefaultHNSWConfig())
	require.NoError(t, idx.Insert("a", []float32{1, 2, 3}))

	stats := idx.Stats()
	assert.Equal(t, "HNSWIndex", stats["type"])
	assert.Equal(t, "cosine", stats["metric"])
	assert.Equal(t, 3, stats["dimensions"])
	assert.Equal(t, 1, stats["vector_count"])
	assert.Contains(t, stats, "layer_count")
	assert.Contains(t, stats, "ef_construction")
}

// TestHNSWIndex_RecallAgainstFlatOracle checks that HNSW search recovers
// most of the same neighbors the exact flat index finds, the correctness
// property a real approximate index is expected to satisfy.
func TestHNSWIndex_RecallAgainstFlatOracle(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	const n, dim, k = 300, 16, 10

	cfg := DefaultHNSWConfig()
	cfg.EfSearch = 100
	hnsw := NewHNSWIndex(distance.Euclidean, cfg)
	flat := NewFlatIndex(distance.Euclidean)

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("v%d", i)
		v := randomVec(r, dim)
		require.NoError(t, hnsw.Insert(id, v))
		require.NoError(t, flat.Insert(id, v))
	}

	query := randomVec(r, dim)
	exact, err := flat.Search(query, k)
	require.NoError(t, err)
	approx, err := hnsw.Search(query, k)
	require.NoError(t, err)

	exactIDs := make(map[string]bool, len(exact))
	for _, res := range exact {
		exactIDs[res.ID] = true
	}
	hits := 0
	for _, res := range approx {
		if exactIDs[res.ID] {
			hits++
		}
	}
	recall := float64(hits) / float64(k)
	assert.GreaterOrEqual(t, recall, 0.7, "HNSW recall against flat oracle too low: %f", recall)
}

func TestHNSWIndex_InsertManyThenDeleteHalfKeepsGraphConsistent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	idx := NewHNSWIndex(distance.Euclidean, DefaultHNSWConfig())

	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("v%d", i)
		ids = append(ids, id)
		require.NoError(t, idx.Insert(id, randomVec(r, 8)))
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, idx.Delete(ids[i]))
	}
	assert.Equal(t, 50, idx.Size())

	results, err := idx.Search(randomVec(r, 8), 20)
	require.NoError(t, err)
	for _, res := range results {
		found := false
		for i := 50; i < 100; i++ {
			if res.ID == ids[i] {
				found = true
				break
			}
		}
		assert.True(t, found, "search returned tombstoned id %s", res.ID)
	}
}
