// Package encoding implements the on-disk byte layout for vector records:
// length-prefixed little-endian vectors and length-prefixed JSON metadata.
package encoding

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned when vector bytes are malformed or absent.
var ErrInvalidVector = errors.New("invalid vector bytes")

// EncodeVector encodes a float32 vector as a little-endian byte sequence,
// length-prefixed by an int32 element count.
func EncodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}
	buf := new(bytes.Buffer)
	if len(vector) > math.MaxInt32 {
		return nil, fmt.Errorf("vector too large: %d elements exceeds maximum", len(vector))
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vector))); err != nil {
		return nil, fmt.Errorf("encode vector length: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("encode vector values: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeVector reverses EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}
	buf := bytes.NewReader(data)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("decode vector length: %w", err)
	}
	if length < 0 {
		return nil, ErrInvalidVector
	}
	if length == 0 {
		return []float32{}, nil
	}
	expected := int(length) * 4
	if buf.Len() < expected {
		return nil, ErrInvalidVector
	}
	vector := make([]float32, length)
	if err := binary.Read(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("decode vector values: %w", err)
	}
	return vector, nil
}

// EncodeMetadata marshals a metadata map to its length-prefixed JSON byte
// form, matching the "(vector-bytes || length-prefixed metadata-bytes)"
// disk record layout.
func EncodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte{0, 0, 0, 0}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, int32(len(data))); err != nil {
		return nil, fmt.Errorf("encode metadata length: %w", err)
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// DecodeMetadata reverses EncodeMetadata.
func DecodeMetadata(data []byte) (map[string]any, error) {
	if len(data) < 4 {
		return nil, nil
	}
	buf := bytes.NewReader(data)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("decode metadata length: %w", err)
	}
	if length == 0 {
		return nil, nil
	}
	raw := make([]byte, length)
	if _, err := buf.Read(raw); err != nil {
		return nil, fmt.Errorf("decode metadata payload: %w", err)
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// EncodeRecord builds the full on-disk record layout for a stored vector:
// vector-bytes followed by length-prefixed metadata-bytes.
func EncodeRecord(vector []float32, metadata map[string]any) ([]byte, error) {
	vecBytes, err := EncodeVector(vector)
	if err != nil {
		return nil, err
	}
	metaBytes, err := EncodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return append(vecBytes, metaBytes...), nil
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(data []byte) (vector []float32, metadata map[string]any, err error) {
	if len(data) < 4 {
		return nil, nil, ErrInvalidVector
	}
	buf := bytes.NewReader(data)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, nil, fmt.Errorf("decode vector length: %w", err)
	}
	if length < 0 {
		return nil, nil, ErrInvalidVector
	}
	vector = make([]float32, length)
	if length > 0 {
		if err := binary.Read(buf, binary.LittleEndian, vector); err != nil {
			return nil, nil, fmt.Errorf("decode vector values: %w", err)
		}
	}
	rest := make([]byte, buf.Len())
	if _, err := buf.Read(rest); err != nil && len(rest) > 0 {
		return nil, nil, fmt.Errorf("read remaining record bytes: %w", err)
	}
	metadata, err = DecodeMetadata(rest)
	if err != nil {
		return nil, nil, err
	}
	return vector, metadata, nil
}
