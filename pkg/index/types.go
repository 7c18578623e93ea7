// Package index implements the searchable structures over vector ids:
// an exact brute-force FlatIndex (the correctness oracle) and an
// approximate HNSWIndex.
package index

import (
	"math"

	"github.com/go-vecdb/vecdb/pkg/distance"
)

// SearchResult is one candidate returned by an index search, in ascending
// distance order.
type SearchResult struct {
	ID       string
	Distance float64
}

// Index is the narrow contract the coordinator holds one of: FlatIndex or
// HNSWIndex. Handles/adjacency are internal; callers address nodes by
// their external string id.
type Index interface {
	// Insert adds or overwrites id's vector.
	Insert(id string, vector []float32) error
	// Search returns up to k results in ascending distance order.
	Search(query []float32, k int) ([]SearchResult, error)
	// Delete tombstones id; a second call is a no-op.
	Delete(id string) error
	// Size returns the count of live (non-tombstoned) entries.
	Size() int
	// Stats reports index-type-specific statistics, always including
	// "type", "dimensions", and "vector_count".
	Stats() map[string]any
}

var _ Index = (*FlatIndex)(nil)
var _ Index = (*HNSWIndex)(nil)

// distanceFunc adapts pkg/distance's per-metric functions, which report
// InvalidInput via an error, into the panic-free internal signature used
// by the hot insert/search loops (validation happens once at the index
// boundary, so a mismatched pair here indicates an index-internal bug).
func distanceFunc(m distance.Metric) func(a, b []float32) float64 {
	return func(a, b []float32) float64 {
		d, err := distance.Distance(m, a, b)
		if err != nil {
			return math.Inf(1)
		}
		return d
	}
}
