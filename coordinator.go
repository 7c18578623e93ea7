// Package vecdb implements an embeddable vector database: a coordinator
// binding a pluggable index (flat or HNSW) to a pluggable storage
// backend (memory or disk), with optional quantization and persistence.
package vecdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/go-vecdb/vecdb/internal/idgen"
	"github.com/go-vecdb/vecdb/pkg/distance"
	"github.com/go-vecdb/vecdb/pkg/index"
	"github.com/go-vecdb/vecdb/pkg/quantization"
	"github.com/go-vecdb/vecdb/pkg/storage"
)

// state is the coordinator's lifecycle, adapted from the teacher's
// SQLiteStore closed-flag pattern into an explicit state machine so
// Degraded (§4.6.1) has somewhere to live.
type state int

const (
	stateUninitialized state = iota
	stateReady
	stateDegraded
	stateClosed
)

// SearchHit is one result of a search, augmented with the stored
// metadata the bare index.SearchResult doesn't carry.
type SearchHit struct {
	ID       string
	Distance float64
	Metadata map[string]any
}

// DB is the coordinator: the single entry point binding storage, index,
// and optional quantizer into the operations of §4.6. Adapted from the
// teacher's SQLiteStore, generalized to hold a storage.Backend/
// index.Index pair instead of being SQLite-specific.
type DB struct {
	mu sync.RWMutex

	cfg     DatabaseConfig
	state   state
	logger  Logger
	storage storage.Backend
	idx     index.Index
	quant   quantization.Quantizer

	dimension int
}

// Open constructs a database from cfg but does not yet transition it to
// Ready; call Initialize for that.
func Open(cfg DatabaseConfig) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = DefaultMaxK
	}

	backend, err := newStorageBackend(cfg.Storage)
	if err != nil {
		return nil, wrapError("Open", err)
	}

	idx, err := newIndex(cfg.Index)
	if err != nil {
		return nil, wrapError("Open", err)
	}

	// The quantizer is constructed lazily, once a dimension is known: both
	// NewScalarQuantizer and NewProductQuantizer require dimension > 0, and
	// Open has no vectors yet to learn it from. See ensureQuantizerLocked,
	// called from Initialize (existing data) and Insert (first batch).
	return &DB{
		cfg:     cfg,
		logger:  cfg.Logger,
		storage: backend,
		idx:     idx,
	}, nil
}

func newStorageBackend(cfg StorageConfig) (storage.Backend, error) {
	switch cfg.Type {
	case StorageTypeDisk:
		return storage.NewDiskBackend(storage.DiskConfig{Path: cfg.DataDir})
	default:
		return storage.NewMemoryBackend(), nil
	}
}

func newIndex(cfg IndexConfig) (index.Index, error) {
	switch cfg.Type {
	case IndexTypeFlat:
		return index.NewFlatIndex(cfg.Metric), nil
	default:
		return index.NewHNSWIndex(cfg.Metric, index.HNSWConfig{
			M:              cfg.M,
			EfConstruction: cfg.EfConstruction,
			EfSearch:       cfg.EfSearch,
		}), nil
	}
}

func newQuantizer(cfg QuantizerConfig, dim int) (quantization.Quantizer, error) {
	switch cfg.Type {
	case QuantizerTypeScalar:
		return quantization.NewScalarQuantizer(dim, cfg.Bits)
	case QuantizerTypeProduct:
		return quantization.NewProductQuantizer(dim, cfg.Subvectors, cfg.Centroids)
	default:
		return nil, nil
	}
}

// quantizerTrainSampleCap bounds how many existing records Initialize
// reads back to train a quantizer configured against a non-empty store.
const quantizerTrainSampleCap = 4096

// ensureQuantizerLocked constructs and trains the configured quantizer
// the first time a dimension and a training sample are available; a
// no-op once db.quant is set, or if no quantizer is configured. Caller
// holds db.mu.
func (db *DB) ensureQuantizerLocked(dim int, samples [][]float32) error {
	if db.quant != nil || db.cfg.Quantizer.Type == QuantizerTypeNone || dim == 0 || len(samples) == 0 {
		return nil
	}
	q, err := newQuantizer(db.cfg.Quantizer, dim)
	if err != nil {
		return err
	}
	if err := q.Train(samples); err != nil {
		return err
	}
	db.quant = q
	return nil
}

// quantizeRoundTrip encodes then immediately decodes vector, returning
// the lossy approximation the quantizer would reconstruct. Both storage
// and the index hold this approximation once a quantizer is configured,
// matching the round-trip property's "within quantizer error ε" allowance.
func quantizeRoundTrip(q quantization.Quantizer, vector []float32) ([]float32, error) {
	code, err := q.Encode(vector)
	if err != nil {
		return nil, err
	}
	return q.Decode(code)
}

// Initialize transitions the database to Ready. Idempotent.
func (db *DB) Initialize() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.state == stateClosed {
		return newError(KindInvalidState, "Initialize", "database is closed")
	}
	if db.state == stateReady {
		return nil
	}

	dim, err := db.discoverDimensionLocked()
	if err != nil {
		return wrapError("Initialize", err)
	}
	db.dimension = dim

	if db.cfg.Quantizer.Type != QuantizerTypeNone && db.quant == nil && dim > 0 {
		samples, err := db.quantizerTrainingSampleLocked(dim)
		if err != nil {
			return wrapError("Initialize", err)
		}
		if err := db.ensureQuantizerLocked(dim, samples); err != nil {
			return newError(KindQuantization, "Initialize", fmt.Sprintf("quantizer training failed: %v", err))
		}
	}

	db.state = stateReady
	db.logger.Info("database initialized", "dimensions", dim)
	return nil
}

// quantizerTrainingSampleLocked reads back up to quantizerTrainSampleCap
// existing vectors to train a quantizer configured against a store that
// already holds data. Caller holds db.mu.
func (db *DB) quantizerTrainingSampleLocked(dim int) ([][]float32, error) {
	ctx := context.Background()
	ids, err := db.storage.ListIDs(ctx, quantizerTrainSampleCap)
	if err != nil {
		return nil, err
	}
	samples := make([][]float32, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := db.storage.Retrieve(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			samples = append(samples, rec.Vector)
		}
	}
	return samples, nil
}

// discoverDimensionLocked implements §4.6.2's discovery order: ask the
// index first (it knows D once it holds at least one vector), then fall
// back to the first id storage yields. An empty database has no
// discoverable dimension yet; that is not an error, it simply means the
// first Insert call fixes D.
func (db *DB) discoverDimensionLocked() (int, error) {
	if d, ok := db.idx.Stats()["dimensions"].(int); ok && d > 0 {
		return d, nil
	}

	ctx := context.Background()
	ids, err := db.storage.ListIDs(ctx, 1)
	if err != nil {
		return 0, wrapError("discoverDimension", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	rec, ok, err := db.storage.Retrieve(ctx, ids[0])
	if err != nil {
		return 0, wrapError("discoverDimension", err)
	}
	if !ok {
		return 0, newError(KindInvalidState, "discoverDimension", "store reported an id that could not be retrieved")
	}
	return len(rec.Vector), nil
}

func (db *DB) requireReadyLocked() error {
	switch db.state {
	case stateClosed:
		return newError(KindInvalidState, "", "database is closed")
	case stateUninitialized:
		return newError(KindInvalidState, "", "database not initialized")
	default:
		return nil
	}
}

const maxFinite32 = 3.4028235e+38

// validateVectorAgainst validates vector against *dim, setting *dim if
// it is still zero (the first insert in a batch sets D for the rest of
// the batch and the database).
func validateVectorAgainst(vector []float32, dim *int) error {
	if len(vector) == 0 {
		return newError(KindInvalidInput, "", "vector must not be empty")
	}
	for _, v := range vector {
		if v != v || v > maxFinite32 || v < -maxFinite32 {
			return newError(KindInvalidInput, "", "vector contains NaN or infinite value")
		}
	}
	if *dim == 0 {
		*dim = len(vector)
		return nil
	}
	if len(vector) != *dim {
		return newError(KindInvalidInput, "", fmt.Sprintf("dimension mismatch: expected %d, got %d", *dim, len(vector)))
	}
	return nil
}

func validateMetadata(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}
	if _, err := json.Marshal(metadata); err != nil {
		return newError(KindInvalidInput, "", fmt.Sprintf("metadata is not JSON-serializable: %v", err))
	}
	return nil
}

// InsertInput is one vector plus optional caller-supplied id and
// metadata for a call to Insert.
type InsertInput struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Insert implements the two-phase write of §4.6.1 for a batch: every
// input validates before any storage write (all-or-nothing), then each
// record is written to storage before index registration, with storage
// compensation attempted on an index-registration failure. It returns
// one id per input in order.
func (db *DB) Insert(ctx context.Context, inputs []InsertInput) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireReadyLocked(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(inputs))
	seen := make(map[string]bool, len(inputs))
	dim := db.dimension

	for i, in := range inputs {
		if err := validateVectorAgainst(in.Vector, &dim); err != nil {
			return nil, err
		}
		if err := validateMetadata(in.Metadata); err != nil {
			return nil, err
		}

		id := in.ID
		if id == "" {
			id = idgen.New()
		} else if err := idgen.Validate(id); err != nil {
			return nil, newErrorID(KindInvalidInput, "", id, "invalid id: "+err.Error())
		}
		if seen[id] {
			return nil, newErrorID(KindConflict, "", id, "duplicate id within batch")
		}
		seen[id] = true
		ids[i] = id
	}

	if db.cfg.Quantizer.Type != QuantizerTypeNone && db.quant == nil && dim > 0 {
		samples := make([][]float32, len(inputs))
		for i, in := range inputs {
			samples[i] = in.Vector
		}
		if err := db.ensureQuantizerLocked(dim, samples); err != nil {
			return nil, newError(KindQuantization, "Insert", fmt.Sprintf("quantizer training failed: %v", err))
		}
	}

	for i, in := range inputs {
		id := ids[i]
		vector := in.Vector
		if db.quant != nil {
			approx, err := quantizeRoundTrip(db.quant, in.Vector)
			if err != nil {
				return nil, newErrorID(KindQuantization, "Insert", id, fmt.Sprintf("quantization failed: %v", err))
			}
			vector = approx
		}
		if err := db.storage.Store(ctx, id, vector, in.Metadata); err != nil {
			return nil, wrapError("Insert", err)
		}
		if err := db.idx.Insert(id, vector); err != nil {
			if delErr := db.storage.Delete(ctx, []string{id}); delErr != nil {
				db.state = stateDegraded
				return nil, newErrorID(KindIndex, "Insert", id,
					fmt.Sprintf("index registration failed (%v) and storage compensation also failed (%v); database degraded", err, delErr))
			}
			return nil, newErrorID(KindIndex, "Insert", id, fmt.Sprintf("index registration failed: %v", err))
		}
	}

	db.dimension = dim
	return ids, nil
}

// Search returns up to k hits for query in ascending distance order.
func (db *DB) Search(ctx context.Context, query []float32, k int) ([]SearchHit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.searchLocked(ctx, query, k)
}

func (db *DB) searchLocked(ctx context.Context, query []float32, k int) ([]SearchHit, error) {
	if err := db.requireReadyLocked(); err != nil {
		return nil, err
	}
	if k <= 0 || k > db.cfg.MaxK {
		return nil, newError(KindInvalidInput, "Search", fmt.Sprintf("k must be in [1, %d], got %d", db.cfg.MaxK, k))
	}
	if db.dimension > 0 && len(query) != db.dimension {
		return nil, newError(KindInvalidInput, "Search", fmt.Sprintf("dimension mismatch: expected %d, got %d", db.dimension, len(query)))
	}

	results, err := db.idx.Search(query, k)
	if err != nil {
		return nil, wrapError("Search", err)
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

// BatchSearch runs Search for each query concurrently via errgroup,
// preserving per-query result order in the returned slice, per §4.6's
// allowance that batch_search's concurrency is an implementation choice.
func (db *DB) BatchSearch(ctx context.Context, queries [][]float32, k int) ([][]SearchHit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	results := make([][]SearchHit, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			hits, err := db.searchLocked(gctx, q, k)
			if err != nil {
				return err
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Update replaces id's vector and/or metadata. At least one of vector or
// metadata must be non-nil. A vector update is modeled as index delete +
// insert (§4.5.7); if index registration fails, the previous record is
// written back to storage, and the database is marked degraded if that
// also fails. A metadata-only update goes through UpdateMetadata and
// leaves the index untouched.
func (db *DB) Update(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.updateLocked(ctx, id, vector, metadata)
}

func (db *DB) updateLocked(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	if err := db.requireReadyLocked(); err != nil {
		return err
	}
	if vector == nil && metadata == nil {
		return newErrorID(KindInvalidInput, "Update", id, "at least one of vector or metadata must be present")
	}

	existing, ok, err := db.storage.Retrieve(ctx, id)
	if err != nil {
		return wrapError("Update", err)
	}
	if !ok {
		return newErrorID(KindNotFound, "Update", id, "id not found")
	}

	if vector != nil {
		dim := db.dimension
		if err := validateVectorAgainst(vector, &dim); err != nil {
			return err
		}
		newMetadata := existing.Metadata
		if metadata != nil {
			if err := validateMetadata(metadata); err != nil {
				return err
			}
			newMetadata = metadata
		}

		stored := vector
		if db.cfg.Quantizer.Type != QuantizerTypeNone {
			if err := db.ensureQuantizerLocked(dim, [][]float32{vector}); err != nil {
				return newErrorID(KindQuantization, "Update", id, fmt.Sprintf("quantizer training failed: %v", err))
			}
			if db.quant != nil {
				approx, err := quantizeRoundTrip(db.quant, vector)
				if err != nil {
					return newErrorID(KindQuantization, "Update", id, fmt.Sprintf("quantization failed: %v", err))
				}
				stored = approx
			}
		}

		if err := db.storage.Store(ctx, id, stored, newMetadata); err != nil {
			return wrapError("Update", err)
		}
		if err := db.idx.Insert(id, stored); err != nil {
			if restoreErr := db.storage.Store(ctx, id, existing.Vector, existing.Metadata); restoreErr != nil {
				db.state = stateDegraded
				return newErrorID(KindIndex, "Update", id,
					fmt.Sprintf("index update failed (%v) and storage compensation also failed (%v); database degraded", err, restoreErr))
			}
			return newErrorID(KindIndex, "Update", id, fmt.Sprintf("index update failed: %v", err))
		}
		db.dimension = dim
		return nil
	}

	if err := validateMetadata(metadata); err != nil {
		return err
	}
	if err := db.storage.UpdateMetadata(ctx, id, metadata); err != nil {
		return wrapError("Update", err)
	}
	return nil
}

// BatchUpdateInput is one entry of a BatchUpdate call.
type BatchUpdateInput struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// BatchUpdate applies Update to each input independently, returning a
// per-entry success flag rather than failing the whole batch on one bad
// entry.
func (db *DB) BatchUpdate(ctx context.Context, inputs []BatchUpdateInput) []bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	ok := make([]bool, len(inputs))
	for i, in := range inputs {
		ok[i] = db.updateLocked(ctx, in.ID, in.Vector, in.Metadata) == nil
	}
	return ok
}

// Delete removes ids from both storage and the index. Missing ids do
// not fail the batch.
func (db *DB) Delete(ctx context.Context, ids []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireReadyLocked(); err != nil {
		return err
	}
	if err := db.storage.Delete(ctx, ids); err != nil {
		return wrapError("Delete", err)
	}
	for _, id := range ids {
		_ = db.idx.Delete(id)
	}
	return nil
}

// ListVectorIDs returns up to limit ids (0 means unlimited), delegating
// to storage.
func (db *DB) ListVectorIDs(ctx context.Context, limit int) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.requireReadyLocked(); err != nil {
		return nil, err
	}
	ids, err := db.storage.ListIDs(ctx, limit)
	return ids, wrapError("ListVectorIDs", err)
}

// ListVectorIDsPaged returns one page of ids starting at cursor.
func (db *DB) ListVectorIDsPaged(ctx context.Context, pageSize int, cursor string) (storage.Page, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.requireReadyLocked(); err != nil {
		return storage.Page{}, err
	}
	page, err := db.storage.ListIDsPaged(ctx, pageSize, cursor)
	return page, wrapError("ListVectorIDsPaged", err)
}

// StreamVectorIDs returns a channel of all ids, delegating to storage.
func (db *DB) StreamVectorIDs(ctx context.Context) (<-chan string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.requireReadyLocked(); err != nil {
		return nil, err
	}
	ch, err := db.storage.StreamIDs(ctx)
	return ch, wrapError("StreamVectorIDs", err)
}

// GetStats aggregates storage, index, and (if configured) quantization
// statistics.
func (db *DB) GetStats(ctx context.Context) (map[string]any, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.requireReadyLocked(); err != nil {
		return nil, err
	}

	storageStats, err := db.storage.Stats(ctx)
	if err != nil {
		return nil, wrapError("GetStats", err)
	}

	out := map[string]any{
		"storage":      storageStats,
		"index":        db.idx.Stats(),
		"dimensions":   db.dimension,
		"vector_count": db.idx.Size(),
		"degraded":     db.state == stateDegraded,
	}
	if db.quant != nil {
		out["quantization"] = db.quant.Stats()
	}
	return out, nil
}

// Close flushes storage and transitions to Closed. Idempotent;
// subsequent operations fail with InvalidState.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.state == stateClosed {
		return nil
	}
	err := db.storage.Close()
	db.state = stateClosed
	if db.quant != nil {
		_ = db.quant.Close()
	}
	return wrapError("Close", err)
}

// Metric reports the distance metric the index was configured with.
func (db *DB) Metric() distance.Metric {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.cfg.Index.Metric
}
