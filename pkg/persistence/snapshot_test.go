package persistence

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_SaveRestoreRoundTrip(t *testing.T) {
	records := []Record{
		{ID: "a", Vector: []float32{1, 2, 3}, Metadata: map[string]any{"tag": "x"}},
		{ID: "b", Vector: []float32{4, 5, 6}, Metadata: nil},
	}
	recordBytes, err := EncodeStorageRecords(records)
	require.NoError(t, err)

	paramBytes, err := EncodeIndexParams(IndexParams{Type: "hnsw", Metric: "cosine", Dimensions: 3, M: 16})
	require.NoError(t, err)

	snap := NewSnapshot(1700000000)
	snap.Put(SectionStorage, recordBytes)
	snap.Put(SectionIndexParams, paramBytes)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, snap))

	restored, err := Restore(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap.CreatedAt, restored.CreatedAt)

	gotRecordBytes, ok := restored.Get(SectionStorage)
	require.True(t, ok)
	gotRecords, err := DecodeStorageRecords(gotRecordBytes)
	require.NoError(t, err)
	require.Len(t, gotRecords, 2)
	assert.Equal(t, "a", gotRecords[0].ID)
	assert.Equal(t, []float32{1, 2, 3}, gotRecords[0].Vector)
	assert.Equal(t, "x", gotRecords[0].Metadata["tag"])

	gotParamBytes, ok := restored.Get(SectionIndexParams)
	require.True(t, ok)
	gotParams, err := DecodeIndexParams(gotParamBytes)
	require.NoError(t, err)
	assert.Equal(t, "hnsw", gotParams.Type)
	assert.Equal(t, 16, gotParams.M)
}

func TestRestore_RejectsBadMagic(t *testing.T) {
	_, err := Restore(bytes.NewReader([]byte("not a snapshot at all, just junk bytes")))
	assert.Error(t, err)
}

func TestRestore_RejectsFutureVersion(t *testing.T) {
	snap := NewSnapshot(0)
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, snap))

	data := buf.Bytes()
	// Version field follows the 8-byte magic, little-endian uint32.
	data[8] = 0xFF
	data[9] = 0xFF

	_, err := Restore(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestRestore_RejectsCorruptedSection(t *testing.T) {
	snap := NewSnapshot(0)
	snap.Put(SectionQuantizer, []byte("trained codebook bytes"))

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, snap))

	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF // flip a bit inside the section payload

	_, err := Restore(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
}

func TestEncodeDecodeQuantizerState(t *testing.T) {
	state := QuantizerState{Type: "scalar", Payload: []byte{1, 2, 3, 4}}
	data, err := EncodeQuantizerState(state)
	require.NoError(t, err)

	decoded, err := DecodeQuantizerState(data)
	require.NoError(t, err)
	assert.Equal(t, state, decoded)
}
