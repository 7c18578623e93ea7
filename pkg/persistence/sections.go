package persistence

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/go-vecdb/vecdb/internal/encoding"
)

// Record is one stored vector as persisted in the SectionStorage section.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// EncodeStorageRecords serializes records as a count-prefixed sequence of
// (id-length, id, record-length, record-bytes) entries, reusing
// internal/encoding's vector+metadata layout for each record's payload.
func EncodeStorageRecords(records []Record) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(records))); err != nil {
		return nil, fmt.Errorf("persistence: write record count: %w", err)
	}
	for _, rec := range records {
		idBytes := []byte(rec.ID)
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return nil, fmt.Errorf("persistence: write id length: %w", err)
		}
		buf.Write(idBytes)

		payload, err := encoding.EncodeRecord(rec.Vector, rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("persistence: encode record %s: %w", rec.ID, err)
		}
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(payload))); err != nil {
			return nil, fmt.Errorf("persistence: write record length: %w", err)
		}
		buf.Write(payload)
	}
	return buf.Bytes(), nil
}

// DecodeStorageRecords reverses EncodeStorageRecords.
func DecodeStorageRecords(data []byte) ([]Record, error) {
	buf := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("persistence: read record count: %w", err)
	}

	records := make([]Record, count)
	for i := range records {
		var idLen uint32
		if err := binary.Read(buf, binary.LittleEndian, &idLen); err != nil {
			return nil, fmt.Errorf("persistence: read id length: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := buf.Read(idBytes); err != nil {
			return nil, fmt.Errorf("persistence: read id: %w", err)
		}

		var recLen uint32
		if err := binary.Read(buf, binary.LittleEndian, &recLen); err != nil {
			return nil, fmt.Errorf("persistence: read record length: %w", err)
		}
		payload := make([]byte, recLen)
		if _, err := buf.Read(payload); err != nil {
			return nil, fmt.Errorf("persistence: read record payload: %w", err)
		}

		vector, metadata, err := encoding.DecodeRecord(payload)
		if err != nil {
			return nil, fmt.Errorf("persistence: decode record: %w", err)
		}
		records[i] = Record{ID: string(idBytes), Vector: vector, Metadata: metadata}
	}
	return records, nil
}

// IndexParams captures the index configuration needed to reconstruct a
// fresh index of the right shape before restoring its state.
type IndexParams struct {
	Type           string `json:"type"`
	Metric         string `json:"metric"`
	Dimensions     int    `json:"dimensions"`
	M              int    `json:"m,omitempty"`
	EfConstruction int    `json:"ef_construction,omitempty"`
	EfSearch       int    `json:"ef_search,omitempty"`
}

// EncodeIndexParams marshals params as JSON, the human-inspectable
// format for a section expected to be small and rarely on the hot path.
func EncodeIndexParams(params IndexParams) ([]byte, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("persistence: encode index params: %w", err)
	}
	return data, nil
}

// DecodeIndexParams reverses EncodeIndexParams.
func DecodeIndexParams(data []byte) (IndexParams, error) {
	var params IndexParams
	if err := json.Unmarshal(data, &params); err != nil {
		return IndexParams{}, fmt.Errorf("persistence: decode index params: %w", err)
	}
	return params, nil
}

// QuantizerState wraps a quantizer's opaque MarshalBinary output with
// enough metadata to pick the right concrete type on restore.
type QuantizerState struct {
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
}

// EncodeQuantizerState marshals state as JSON.
func EncodeQuantizerState(state QuantizerState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("persistence: encode quantizer state: %w", err)
	}
	return data, nil
}

// DecodeQuantizerState reverses EncodeQuantizerState.
func DecodeQuantizerState(data []byte) (QuantizerState, error) {
	var state QuantizerState
	if err := json.Unmarshal(data, &state); err != nil {
		return QuantizerState{}, fmt.Errorf("persistence: decode quantizer state: %w", err)
	}
	return state, nil
}
