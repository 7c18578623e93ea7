package index

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/go-vecdb/vecdb/pkg/distance"
)

// hnswNode is one graph participant, addressed internally by a dense
// handle; neighbors[layer] holds the handles connected at that layer.
// Adapted from the teacher's HNSWNode: handle-indexed rather than
// id-indexed, and deleted nodes keep their neighbor lists so traversal
// through them stays connected per the soft-delete contract.
type hnswNode struct {
	id        string
	vector    []float32
	level     int
	neighbors [][]int
	deleted   bool
}

// HNSWIndex implements the Hierarchical Navigable Small World graph:
// approximate nearest-neighbor search with logarithmic expected query
// cost. Adapted from the teacher's HNSW type, replacing its coin-flip
// level assignment and sort-and-truncate neighbor selection with the
// exact formulas and diversity heuristic, and adding insert
// rollback-on-failure (grounded on the libravdb reference's Insert).
type HNSWIndex struct {
	mu sync.RWMutex

	metric distance.Metric
	dist   func(a, b []float32) float64

	m              int
	mMax           int
	mMax0          int
	efConstruction int
	efSearch       int
	mL             float64

	dimension int
	rng       *rand.Rand

	idToHandle map[string]int
	nodes      []*hnswNode // indexed by handle; never shrinks, so handles stay stable
	entryPoint int         // handle, or -1 if empty
	liveCount  int
}

// HNSWConfig holds the tunable construction parameters of §4.5.1.
type HNSWConfig struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultHNSWConfig returns the conventional M=16 starting point.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 16, EfConstruction: 200, EfSearch: 50}
}

// NewHNSWIndex creates an empty graph for the given metric and config.
func NewHNSWIndex(metric distance.Metric, cfg HNSWConfig) *HNSWIndex {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = cfg.M
	}
	return &HNSWIndex{
		metric:         metric,
		dist:           distanceFunc(metric),
		m:              cfg.M,
		mMax:           cfg.M,
		mMax0:          cfg.M * 2,
		efConstruction: cfg.EfConstruction,
		efSearch:       cfg.EfSearch,
		mL:             1.0 / math.Log(float64(cfg.M)),
		rng:            rand.New(rand.NewSource(rand.Int63())),
		idToHandle:     make(map[string]int),
		entryPoint:     -1,
	}
}

// distTo computes "smaller is closer" distance between query and the
// node's stored vector, per §4.5.4 point 4.
func (h *HNSWIndex) distTo(query []float32, handle int) float64 {
	return h.dist(query, h.nodes[handle].vector)
}

// selectLevel draws level = floor(-ln(u) * mL) per §4.5.2.
func (h *HNSWIndex) selectLevel() int {
	u := h.rng.Float64()
	for u <= 0 {
		u = h.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * h.mL))
}

func (h *HNSWIndex) Insert(id string, vector []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(vector) == 0 {
		return fmt.Errorf("hnsw index: empty vector")
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("hnsw index: vector contains NaN or infinite value")
		}
	}
	if h.dimension == 0 {
		h.dimension = len(vector)
	} else if len(vector) != h.dimension {
		return fmt.Errorf("hnsw index: dimension mismatch: expected %d, got %d", h.dimension, len(vector))
	}

	if existing, ok := h.idToHandle[id]; ok {
		return h.reinsert(existing, vector)
	}

	level := h.selectLevel()
	vec := make([]float32, len(vector))
	copy(vec, vector)

	node := &hnswNode{id: id, vector: vec, level: level, neighbors: make([][]int, level+1)}
	for i := range node.neighbors {
		node.neighbors[i] = []int{}
	}

	handle := len(h.nodes)
	h.nodes = append(h.nodes, node)
	h.idToHandle[id] = handle

	if h.entryPoint == -1 {
		h.entryPoint = handle
		h.liveCount++
		return nil
	}

	if err := h.link(handle, vector, level); err != nil {
		// Roll back: retire the handle entirely so no dangling edges exist.
		h.rollback(handle)
		return err
	}

	if level > h.nodes[h.entryPoint].level {
		h.entryPoint = handle
	}
	h.liveCount++
	return nil
}

// reinsert implements update-as-delete-plus-insert (§4.5.7) while
// preserving the external id's handle identity is not required by spec;
// we retire the old handle and link a fresh one, which keeps tombstoned
// history minimal.
func (h *HNSWIndex) reinsert(oldHandle int, vector []float32) error {
	wasLive := !h.nodes[oldHandle].deleted
	h.nodes[oldHandle].deleted = true
	if wasLive {
		h.liveCount--
	}
	delete(h.idToHandle, h.nodes[oldHandle].id)

	id := h.nodes[oldHandle].id
	level := h.selectLevel()
	vec := make([]float32, len(vector))
	copy(vec, vector)

	node := &hnswNode{id: id, vector: vec, level: level, neighbors: make([][]int, level+1)}
	for i := range node.neighbors {
		node.neighbors[i] = []int{}
	}
	handle := len(h.nodes)
	h.nodes = append(h.nodes, node)
	h.idToHandle[id] = handle

	if h.entryPoint != -1 && h.nodes[h.entryPoint].deleted {
		h.entryPoint = -1
		for hdl, n := range h.nodes {
			if !n.deleted && hdl != handle {
				h.entryPoint = hdl
				break
			}
		}
	}

	if h.entryPoint == -1 || h.allTombstoned() {
		h.entryPoint = handle
		h.liveCount++
		return nil
	}

	if err := h.link(handle, vector, level); err != nil {
		h.rollback(handle)
		delete(h.idToHandle, id)
		return err
	}
	if level > h.nodes[h.entryPoint].level {
		h.entryPoint = handle
	}
	h.liveCount++
	return nil
}

func (h *HNSWIndex) allTombstoned() bool {
	for _, n := range h.nodes {
		if !n.deleted {
			return false
		}
	}
	return true
}

// link performs the descent and layered-connect steps of §4.5.3 for a
// freshly allocated handle. On any failure the caller must roll back.
func (h *HNSWIndex) link(handle int, vector []float32, level int) error {
	ep := h.entryPoint
	epLayer := h.nodes[ep].level

	// Descent: layers L down to level+1, greedy walk only.
	for lc := epLayer; lc > level; lc-- {
		ep = h.greedyDescend(vector, ep, lc)
	}

	// Layered connect: layers min(level, L) down to 0.
	entries := []int{ep}
	for lc := min(level, epLayer); lc >= 0; lc-- {
		candidates := h.searchLayer(vector, entries, h.efConstruction, lc)
		maxDegree := h.mMax
		if lc == 0 {
			maxDegree = h.mMax0
		}
		neighbors := h.selectNeighbors(vector, candidates, maxDegree)

		h.nodes[handle].neighbors[lc] = neighbors
		for _, nb := range neighbors {
			h.addEdge(nb, handle, lc)

			nbCap := h.mMax
			if lc == 0 {
				nbCap = h.mMax0
			}
			if len(h.nodes[nb].neighbors[lc]) > nbCap {
				pruned := h.selectNeighbors(h.nodes[nb].vector, h.nodes[nb].neighbors[lc], nbCap)
				h.nodes[nb].neighbors[lc] = pruned
			}
		}
		entries = neighbors
		if len(entries) == 0 {
			entries = []int{ep}
		}
	}
	return nil
}

// rollback retires a handle that never finished linking: it strips any
// edges neighbors may have formed back to it and marks it tombstoned so
// it is never an entry point or search result, leaving the graph
// consistent per §4.5.9.
func (h *HNSWIndex) rollback(handle int) {
	node := h.nodes[handle]
	for lc, neighbors := range node.neighbors {
		for _, nb := range neighbors {
			h.removeEdge(nb, handle, lc)
		}
	}
	node.neighbors = nil
	node.deleted = true
}

func (h *HNSWIndex) removeEdge(from, to, layer int) {
	if layer >= len(h.nodes[from].neighbors) {
		return
	}
	edges := h.nodes[from].neighbors[layer]
	for i, nb := range edges {
		if nb == to {
			h.nodes[from].neighbors[layer] = append(edges[:i], edges[i+1:]...)
			return
		}
	}
}

func (h *HNSWIndex) addEdge(from, to, layer int) {
	if layer >= len(h.nodes[from].neighbors) {
		return
	}
	for _, nb := range h.nodes[from].neighbors[layer] {
		if nb == to {
			return
		}
	}
	h.nodes[from].neighbors[layer] = append(h.nodes[from].neighbors[layer], to)
}

// greedyDescend repeatedly moves to any neighbor of ep closer to query
// than ep itself, until no neighbor improves, per §4.5.3 step 4.
func (h *HNSWIndex) greedyDescend(query []float32, ep, layer int) int {
	best := ep
	bestDist := h.distTo(query, best)
	for {
		improved := false
		if layer >= len(h.nodes[best].neighbors) {
			break
		}
		for _, nb := range h.nodes[best].neighbors[layer] {
			d := h.distTo(query, nb)
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return best
}

// searchLayer is the standard two-heap HNSW procedure of §4.5.4: a
// min-heap of candidates to explore and a max-heap of the current best
// ef results, expanding unvisited neighbors until no candidate can
// improve the current worst best result.
func (h *HNSWIndex) searchLayer(query []float32, entryPoints []int, ef, layer int) []int {
	visited := make(map[int]bool)
	candidates := &minDistHeap{}
	best := &maxDistHeap{}

	for _, ep := range entryPoints {
		if h.nodes[ep].deleted {
			continue
		}
		d := h.distTo(query, ep)
		heap.Push(candidates, distItem{handle: ep, dist: d})
		heap.Push(best, distItem{handle: ep, dist: d})
		visited[ep] = true
	}

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(distItem)
		if best.Len() >= ef && current.dist > (*best)[0].dist {
			break
		}

		if layer >= len(h.nodes[current.handle].neighbors) {
			continue
		}
		for _, nb := range h.nodes[current.handle].neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := h.distTo(query, nb)
			if h.nodes[nb].deleted {
				// Tombstones are traversed but never enter the result set.
				if best.Len() < ef || d < (*best)[0].dist {
					heap.Push(candidates, distItem{handle: nb, dist: d})
				}
				continue
			}
			if best.Len() < ef || d < (*best)[0].dist {
				heap.Push(candidates, distItem{handle: nb, dist: d})
				heap.Push(best, distItem{handle: nb, dist: d})
				if best.Len() > ef {
					heap.Pop(best)
				}
			}
		}
	}

	result := make([]int, best.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(best).(distItem).handle
	}
	return result
}

// selectNeighbors applies the diversity-preserving heuristic of §4.5.5:
// a candidate (in ascending distance-to-query order) is admitted iff no
// already-admitted result is closer to it than it is to the query, with
// a floor of min(maxDegree, 3) unconditional admissions to avoid starvation.
func (h *HNSWIndex) selectNeighbors(query []float32, candidates []int, maxDegree int) []int {
	if len(candidates) <= maxDegree {
		out := make([]int, len(candidates))
		copy(out, candidates)
		return out
	}

	ordered := make([]distItem, len(candidates))
	for i, c := range candidates {
		ordered[i] = distItem{handle: c, dist: h.distTo(query, c)}
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].dist < ordered[j-1].dist; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	floor := maxDegree
	if floor > 3 {
		floor = 3
	}

	var result []int
	for _, cand := range ordered {
		if len(result) >= maxDegree {
			break
		}
		if len(result) < floor {
			result = append(result, cand.handle)
			continue
		}
		diverse := true
		for _, r := range result {
			if h.dist(h.nodes[cand.handle].vector, h.nodes[r].vector) < cand.dist {
				diverse = false
				break
			}
		}
		if diverse {
			result = append(result, cand.handle)
		}
	}
	return result
}

// Search implements §4.5.4.
func (h *HNSWIndex) Search(query []float32, k int) ([]SearchResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if k <= 0 {
		return nil, fmt.Errorf("hnsw index: k must be positive")
	}
	if h.dimension != 0 && len(query) != h.dimension {
		return nil, fmt.Errorf("hnsw index: dimension mismatch: expected %d, got %d", h.dimension, len(query))
	}
	if h.entryPoint == -1 {
		return nil, nil
	}

	ep := h.entryPoint
	if h.nodes[ep].deleted {
		found := false
		for handle, n := range h.nodes {
			if !n.deleted {
				ep = handle
				found = true
				break
			}
		}
		if !found {
			return nil, nil
		}
	}

	for layer := h.nodes[ep].level; layer > 0; layer-- {
		ep = h.greedyDescend(query, ep, layer)
	}

	ef := h.efSearch
	if k > ef {
		ef = k
	}
	candidates := h.searchLayer(query, []int{ep}, ef, 0)

	items := make([]distItem, 0, len(candidates))
	for _, c := range candidates {
		if h.nodes[c].deleted {
			continue
		}
		items = append(items, distItem{handle: c, dist: h.distTo(query, c)})
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].dist < items[j-1].dist; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	if len(items) > k {
		items = items[:k]
	}

	results := make([]SearchResult, len(items))
	for i, it := range items {
		results[i] = SearchResult{ID: h.nodes[it.handle].id, Distance: it.dist}
	}
	return results, nil
}

// Delete implements the soft-delete of §4.5.6.
func (h *HNSWIndex) Delete(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	handle, ok := h.idToHandle[id]
	if !ok {
		return nil
	}
	if h.nodes[handle].deleted {
		return nil
	}
	h.nodes[handle].deleted = true
	h.liveCount--
	delete(h.idToHandle, id)

	if h.entryPoint == handle {
		h.entryPoint = -1
		for hdl, n := range h.nodes {
			if !n.deleted {
				h.entryPoint = hdl
				break
			}
		}
	}
	return nil
}

func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.liveCount
}

// Stats reports the fields named in §4.5.8.
func (h *HNSWIndex) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	maxLayer := 0
	for _, n := range h.nodes {
		if !n.deleted && n.level > maxLayer {
			maxLayer = n.level
		}
	}

	return map[string]any{
		"type":            "HNSWIndex",
		"metric":          string(h.metric),
		"M":               h.m,
		"ef_construction": h.efConstruction,
		"ef_search":       h.efSearch,
		"dimensions":      h.dimension,
		"vector_count":    h.liveCount,
		"layer_count":     maxLayer + 1,
	}
}

// distItem pairs a handle with its distance to the active query, used
// by both the min-heap (candidates) and max-heap (current best) of
// searchLayer.
type distItem struct {
	handle int
	dist   float64
}

type minDistHeap []distItem

func (h minDistHeap) Len() int            { return len(h) }
func (h minDistHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minDistHeap) Push(x interface{}) { *h = append(*h, x.(distItem)) }
func (h *minDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type maxDistHeap []distItem

func (h maxDistHeap) Len() int            { return len(h) }
func (h maxDistHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x interface{}) { *h = append(*h, x.(distItem)) }
func (h *maxDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
