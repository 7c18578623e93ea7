package vecdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-vecdb/vecdb/pkg/index"
)

// jsonRecord is the wire shape of DumpJSON/LoadJSON, the canonical
// import/export payload of §6, grounded on the teacher's io.go Dump/Load
// pair.
type jsonRecord struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DumpJSON serializes every stored record as a JSON array, for bulk
// export outside the snapshot format.
func (db *DB) DumpJSON(ctx context.Context) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.requireReadyLocked(); err != nil {
		return nil, err
	}

	ids, err := db.storage.ListIDs(ctx, 0)
	if err != nil {
		return nil, wrapError("DumpJSON", err)
	}

	out := make([]jsonRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := db.storage.Retrieve(ctx, id)
		if err != nil {
			return nil, wrapError("DumpJSON", err)
		}
		if !ok {
			continue
		}
		out = append(out, jsonRecord{ID: rec.ID, Vector: rec.Vector, Metadata: rec.Metadata})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, newError(KindInvalidInput, "DumpJSON", fmt.Sprintf("encode: %v", err))
	}
	return data, nil
}

// LoadJSON inserts every record in a DumpJSON-shaped payload, reusing
// Insert's two-phase write and id/duplicate handling.
func (db *DB) LoadJSON(ctx context.Context, data []byte) ([]string, error) {
	var records []jsonRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, newError(KindInvalidInput, "LoadJSON", fmt.Sprintf("decode: %v", err))
	}

	inputs := make([]InsertInput, len(records))
	for i, r := range records {
		inputs[i] = InsertInput{ID: r.ID, Vector: r.Vector, Metadata: r.Metadata}
	}
	return db.Insert(ctx, inputs)
}

// StreamResult is one hit delivered by StreamSearch.
type StreamResult struct {
	Hit SearchHit
	Err error
}

// StreamSearch returns a channel yielding one StreamResult per hit,
// grounded on the teacher's pkg/core/streaming.go channel-based
// StreamSearch. It is a thin wrapper around Search: the channel is
// closed once every hit (or a terminal error) has been sent.
func (db *DB) StreamSearch(ctx context.Context, query []float32, k int) (<-chan StreamResult, error) {
	db.mu.RLock()
	if err := db.requireReadyLocked(); err != nil {
		db.mu.RUnlock()
		return nil, err
	}
	db.mu.RUnlock()

	out := make(chan StreamResult)
	go func() {
		defer close(out)
		hits, err := db.Search(ctx, query, k)
		if err != nil {
			select {
			case out <- StreamResult{Err: err}:
			case <-ctx.Done():
			}
			return
		}
		for _, h := range hits {
			select {
			case out <- StreamResult{Hit: h}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RangeSearch returns every live entry within radius of query, ascending
// by distance. Only supported when the database is backed by FlatIndex;
// HNSWIndex has no exact range contract (§4.4 vs §4.5).
func (db *DB) RangeSearch(ctx context.Context, query []float32, radius float64) ([]SearchHit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.requireReadyLocked(); err != nil {
		return nil, err
	}

	flat, ok := db.idx.(*index.FlatIndex)
	if !ok {
		return nil, newError(KindInvalidState, "RangeSearch", "range search requires a flat index")
	}
	results, err := flat.RangeSearch(query, radius)
	if err != nil {
		return nil, wrapError("RangeSearch", err)
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{ID: r.ID, Distance: r.Distance}
		rec, ok, err := db.storage.Retrieve(ctx, r.ID)
		if err == nil && ok {
			hits[i].Metadata = rec.Metadata
		}
	}
	return hits, nil
}
