package index

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/go-vecdb/vecdb/pkg/distance"
)

// FlatIndex implements a brute-force exact search index: O(n) per query,
// used as the correctness oracle against HNSWIndex. Adapted from the
// teacher's FlatIndex: same heap-of-size-k search shape, generalized to
// the shared distance.Metric dispatch and tombstone deletes so a deleted
// id can be reinserted without disturbing its original insertion slot.
type FlatIndex struct {
	mu        sync.RWMutex
	metric    distance.Metric
	dist      func(a, b []float32) float64
	dimension int
	order     []string // insertion order, used to break exact distance ties
	seq       map[string]int
	vectors   map[string][]float32
	deleted   map[string]bool
}

// NewFlatIndex creates an empty flat index for the given metric.
// Dimension is learned from the first inserted vector.
func NewFlatIndex(metric distance.Metric) *FlatIndex {
	return &FlatIndex{
		metric:  metric,
		dist:    distanceFunc(metric),
		seq:     make(map[string]int),
		vectors: make(map[string][]float32),
		deleted: make(map[string]bool),
	}
}

func (f *FlatIndex) Insert(id string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dimension == 0 {
		f.dimension = len(vector)
	} else if len(vector) != f.dimension {
		return fmt.Errorf("flat index: dimension mismatch: expected %d, got %d", f.dimension, len(vector))
	}

	v := make([]float32, len(vector))
	copy(v, vector)

	if _, exists := f.vectors[id]; !exists {
		f.seq[id] = len(f.order)
		f.order = append(f.order, id)
	}
	f.vectors[id] = v
	delete(f.deleted, id)
	return nil
}

// Search performs exact brute-force search, returning up to k results in
// ascending distance order with insertion order breaking exact ties.
func (f *FlatIndex) Search(query []float32, k int) ([]SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if k <= 0 {
		return nil, fmt.Errorf("flat index: k must be positive")
	}
	if f.dimension != 0 && len(query) != f.dimension {
		return nil, fmt.Errorf("flat index: dimension mismatch: expected %d, got %d", f.dimension, len(query))
	}

	h := &flatMaxHeap{}
	heap.Init(h)

	for _, id := range f.order {
		if f.deleted[id] {
			continue
		}
		item := flatHeapItem{id: id, distance: f.dist(query, f.vectors[id]), seq: f.seq[id]}
		if h.Len() < k {
			heap.Push(h, item)
		} else if (*h)[0].less(item) {
			heap.Pop(h)
			heap.Push(h, item)
		}
	}

	items := make([]flatHeapItem, h.Len())
	for i := len(items) - 1; i >= 0; i-- {
		items[i] = heap.Pop(h).(flatHeapItem)
	}

	results := make([]SearchResult, len(items))
	for i, it := range items {
		results[i] = SearchResult{ID: it.id, Distance: it.distance}
	}
	return results, nil
}

// RangeSearch returns every live entry within radius of query, ascending
// by distance.
func (f *FlatIndex) RangeSearch(query []float32, radius float64) ([]SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.dimension != 0 && len(query) != f.dimension {
		return nil, fmt.Errorf("flat index: dimension mismatch: expected %d, got %d", f.dimension, len(query))
	}

	var results []SearchResult
	for _, id := range f.order {
		if f.deleted[id] {
			continue
		}
		d := f.dist(query, f.vectors[id])
		if d <= radius {
			results = append(results, SearchResult{ID: id, Distance: d})
		}
	}
	quickSortResults(results, 0, len(results)-1)
	return results, nil
}

// Delete tombstones id; a second call is a no-op.
func (f *FlatIndex) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[id] = true
	return nil
}

func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	count := 0
	for _, id := range f.order {
		if !f.deleted[id] {
			count++
		}
	}
	return count
}

func (f *FlatIndex) Stats() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string]any{
		"type":         "flat",
		"metric":       string(f.metric),
		"dimensions":   f.dimension,
		"vector_count": f.Size(),
	}
}

// quickSortResults sorts results ascending by distance in place.
func quickSortResults(results []SearchResult, low, high int) {
	if low < high {
		pi := partitionResults(results, low, high)
		quickSortResults(results, low, pi-1)
		quickSortResults(results, pi+1, high)
	}
}

func partitionResults(results []SearchResult, low, high int) int {
	pivot := results[high].Distance
	i := low - 1
	for j := low; j < high; j++ {
		if results[j].Distance <= pivot {
			i++
			results[i], results[j] = results[j], results[i]
		}
	}
	results[i+1], results[high] = results[high], results[i+1]
	return i + 1
}

// flatHeapItem is one candidate tracked by the size-k max-heap during
// search: the heap root is the current worst candidate, evicted first
// when a better one arrives.
type flatHeapItem struct {
	id       string
	distance float64
	seq      int
}

// less reports whether item a is strictly worse than b for max-heap
// ordering: larger distance is worse; among equal distances the later
// insertion is considered worse, so ties resolve by insertion order in
// the final ascending result.
func (a flatHeapItem) less(b flatHeapItem) bool {
	if a.distance != b.distance {
		return a.distance > b.distance
	}
	return a.seq > b.seq
}

// flatMaxHeap implements heap.Interface over flatHeapItem.
type flatMaxHeap []flatHeapItem

func (h flatMaxHeap) Len() int           { return len(h) }
func (h flatMaxHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h flatMaxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *flatMaxHeap) Push(x interface{}) {
	*h = append(*h, x.(flatHeapItem))
}

func (h *flatMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}
