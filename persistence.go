package vecdb

import (
	"context"
	"encoding"
	"fmt"
	"io"

	"github.com/go-vecdb/vecdb/pkg/distance"
	"github.com/go-vecdb/vecdb/pkg/index"
	"github.com/go-vecdb/vecdb/pkg/persistence"
	"github.com/go-vecdb/vecdb/pkg/quantization"
)

// Snapshot captures the database's current state as a self-contained
// persistence.Snapshot: every stored record, the index configuration,
// the trained quantizer (if any), and the HNSW graph (if the index is
// HNSW-backed), per SPEC_FULL.md §4.7. createdAt is stamped by the
// caller so the snapshot's timestamp is reproducible.
func (db *DB) Snapshot(ctx context.Context, createdAt int64) (*persistence.Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.requireReadyLocked(); err != nil {
		return nil, err
	}

	ids, err := db.storage.ListIDs(ctx, 0)
	if err != nil {
		return nil, wrapError("Snapshot", err)
	}

	records := make([]persistence.Record, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := db.storage.Retrieve(ctx, id)
		if err != nil {
			return nil, wrapError("Snapshot", err)
		}
		if !ok {
			continue
		}
		records = append(records, persistence.Record{ID: rec.ID, Vector: rec.Vector, Metadata: rec.Metadata})
	}
	recordBytes, err := persistence.EncodeStorageRecords(records)
	if err != nil {
		return nil, wrapError("Snapshot", err)
	}

	paramBytes, err := persistence.EncodeIndexParams(persistence.IndexParams{
		Type:           string(db.cfg.Index.Type),
		Metric:         string(db.cfg.Index.Metric),
		Dimensions:     db.dimension,
		M:              db.cfg.Index.M,
		EfConstruction: db.cfg.Index.EfConstruction,
		EfSearch:       db.cfg.Index.EfSearch,
	})
	if err != nil {
		return nil, wrapError("Snapshot", err)
	}

	snap := persistence.NewSnapshot(createdAt)
	snap.Put(persistence.SectionStorage, recordBytes)
	snap.Put(persistence.SectionIndexParams, paramBytes)

	if db.quant != nil {
		marshaler, ok := db.quant.(encoding.BinaryMarshaler)
		if !ok {
			return nil, newError(KindPersistence, "Snapshot", "configured quantizer does not support binary marshaling")
		}
		payload, err := marshaler.MarshalBinary()
		if err != nil {
			return nil, wrapError("Snapshot", err)
		}
		stateBytes, err := persistence.EncodeQuantizerState(persistence.QuantizerState{
			Type:    string(db.cfg.Quantizer.Type),
			Payload: payload,
		})
		if err != nil {
			return nil, wrapError("Snapshot", err)
		}
		snap.Put(persistence.SectionQuantizer, stateBytes)
	}

	if hnsw, ok := db.idx.(*index.HNSWIndex); ok {
		graphBytes, err := hnsw.MarshalBinary()
		if err != nil {
			return nil, wrapError("Snapshot", err)
		}
		snap.Put(persistence.SectionHNSWGraph, graphBytes)
	}

	return snap, nil
}

// WriteSnapshot writes Snapshot's result to w in pkg/persistence's
// binary format.
func (db *DB) WriteSnapshot(ctx context.Context, w io.Writer, createdAt int64) error {
	snap, err := db.Snapshot(ctx, createdAt)
	if err != nil {
		return err
	}
	return wrapError("WriteSnapshot", persistence.Save(w, snap))
}

// Restore reads a snapshot from r and rebuilds a fresh, Ready database
// from it: storage is repopulated record by record, the index is
// rebuilt from the serialized HNSW graph when present (falling back to
// replaying every record through the index otherwise), and the
// quantizer (if any) is restored from its marshaled state. cfg supplies
// the storage backend and quantizer settings to reconstruct with (e.g.
// which DataDir to open); the index settings are taken from the
// snapshot itself.
func Restore(ctx context.Context, r io.Reader, cfg DatabaseConfig) (*DB, error) {
	snap, err := persistence.Restore(r)
	if err != nil {
		return nil, wrapError("Restore", err)
	}
	return restoreFromSnapshot(ctx, snap, cfg)
}

func restoreFromSnapshot(ctx context.Context, snap *persistence.Snapshot, cfg DatabaseConfig) (*DB, error) {
	paramBytes, ok := snap.Get(persistence.SectionIndexParams)
	if !ok {
		return nil, newError(KindPersistence, "Restore", "snapshot has no index parameters section")
	}
	params, err := persistence.DecodeIndexParams(paramBytes)
	if err != nil {
		return nil, wrapError("Restore", err)
	}

	cfg.Index.Type = IndexType(params.Type)
	cfg.Index.Metric = distance.Metric(params.Metric)
	cfg.Index.M = params.M
	cfg.Index.EfConstruction = params.EfConstruction
	cfg.Index.EfSearch = params.EfSearch

	db, err := Open(cfg)
	if err != nil {
		return nil, wrapError("Restore", err)
	}

	recordBytes, ok := snap.Get(persistence.SectionStorage)
	if !ok {
		return nil, newError(KindPersistence, "Restore", "snapshot has no storage section")
	}
	records, err := persistence.DecodeStorageRecords(recordBytes)
	if err != nil {
		return nil, wrapError("Restore", err)
	}

	db.mu.Lock()
	for _, rec := range records {
		if err := db.storage.Store(ctx, rec.ID, rec.Vector, rec.Metadata); err != nil {
			db.mu.Unlock()
			return nil, wrapError("Restore", err)
		}
	}
	db.dimension = params.Dimensions
	db.mu.Unlock()

	if quantBytes, ok := snap.Get(persistence.SectionQuantizer); ok {
		state, err := persistence.DecodeQuantizerState(quantBytes)
		if err != nil {
			return nil, wrapError("Restore", err)
		}
		quant, err := newBlankQuantizer(QuantizerType(state.Type))
		if err != nil {
			return nil, wrapError("Restore", err)
		}
		unmarshaler, ok := quant.(encoding.BinaryUnmarshaler)
		if !ok {
			return nil, newError(KindPersistence, "Restore", "restored quantizer does not support binary unmarshaling")
		}
		if err := unmarshaler.UnmarshalBinary(state.Payload); err != nil {
			return nil, wrapError("Restore", err)
		}
		db.mu.Lock()
		db.quant = quant
		db.mu.Unlock()
	}

	if graphBytes, ok := snap.Get(persistence.SectionHNSWGraph); ok {
		hnsw, ok := db.idx.(*index.HNSWIndex)
		if !ok {
			return nil, newError(KindPersistence, "Restore", "snapshot has an HNSW graph section but the database is not HNSW-backed")
		}
		if err := hnsw.UnmarshalBinary(graphBytes); err != nil {
			return nil, wrapError("Restore", err)
		}
	} else {
		for _, rec := range records {
			if err := db.idx.Insert(rec.ID, rec.Vector); err != nil {
				return nil, wrapError("Restore", err)
			}
		}
	}

	if err := db.Initialize(); err != nil {
		return nil, err
	}
	return db, nil
}

// newBlankQuantizer returns a zero-value quantizer of typ, ready for
// UnmarshalBinary to populate; unlike newQuantizer it takes no dimension
// since the marshaled state carries its own.
func newBlankQuantizer(typ QuantizerType) (quantization.Quantizer, error) {
	switch typ {
	case QuantizerTypeScalar:
		return &quantization.ScalarQuantizer{}, nil
	case QuantizerTypeProduct:
		return &quantization.ProductQuantizer{}, nil
	default:
		return nil, newError(KindConfiguration, "Restore", fmt.Sprintf("unknown quantizer type %q", typ))
	}
}
