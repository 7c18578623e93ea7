package index

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand"

	"github.com/go-vecdb/vecdb/pkg/distance"
)

// hnswSnapshot is the gob-serializable mirror of HNSWIndex's internal
// state, grounded on the teacher's HNSW.Save/Load gob encoding: the
// graph's adjacency and entry point are dumped wholesale rather than
// section-by-section, since recomputing them is not possible without a
// full re-insertion pass.
type hnswSnapshot struct {
	Metric         string
	M              int
	MMax           int
	MMax0          int
	EfConstruction int
	EfSearch       int
	Dimension      int
	EntryPoint     int
	Nodes          []hnswNodeSnapshot
}

type hnswNodeSnapshot struct {
	ID        string
	Vector    []float32
	Level     int
	Neighbors [][]int
	Deleted   bool
}

// MarshalBinary serializes the graph for the persistence manager's
// optional HNSW graph section.
func (h *HNSWIndex) MarshalBinary() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := hnswSnapshot{
		Metric:         string(h.metric),
		M:              h.m,
		MMax:           h.mMax,
		MMax0:          h.mMax0,
		EfConstruction: h.efConstruction,
		EfSearch:       h.efSearch,
		Dimension:      h.dimension,
		EntryPoint:     h.entryPoint,
		Nodes:          make([]hnswNodeSnapshot, len(h.nodes)),
	}
	for i, n := range h.nodes {
		snap.Nodes[i] = hnswNodeSnapshot{
			ID:        n.id,
			Vector:    n.vector,
			Level:     n.level,
			Neighbors: n.neighbors,
			Deleted:   n.deleted,
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("hnsw index: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a graph previously produced by MarshalBinary,
// rebuilding the id-to-handle index and live count. It must be called on
// a freshly constructed, empty HNSWIndex.
func (h *HNSWIndex) UnmarshalBinary(data []byte) error {
	var snap hnswSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("hnsw index: unmarshal: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.metric = distance.Metric(snap.Metric)
	h.dist = distanceFunc(h.metric)
	h.m = snap.M
	h.mMax = snap.MMax
	h.mMax0 = snap.MMax0
	h.efConstruction = snap.EfConstruction
	h.efSearch = snap.EfSearch
	h.dimension = snap.Dimension
	h.entryPoint = snap.EntryPoint
	h.rng = rand.New(rand.NewSource(rand.Int63()))

	h.nodes = make([]*hnswNode, len(snap.Nodes))
	h.idToHandle = make(map[string]int, len(snap.Nodes))
	h.liveCount = 0
	for i, n := range snap.Nodes {
		h.nodes[i] = &hnswNode{id: n.ID, vector: n.Vector, level: n.Level, neighbors: n.Neighbors, deleted: n.Deleted}
		if !n.Deleted {
			h.idToHandle[n.ID] = i
			h.liveCount++
		}
	}
	return nil
}
