package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVector_RoundTrips(t *testing.T) {
	original := []float32{1.5, -2.25, 0, 3.125}

	encoded, err := EncodeVector(original)
	require.NoError(t, err)

	decoded, err := DecodeVector(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestEncodeDecodeRecord_RoundTrips(t *testing.T) {
	vector := []float32{1, 2, 3}
	metadata := map[string]any{"label": "a", "score": 4.5}

	encoded, err := EncodeRecord(vector, metadata)
	require.NoError(t, err)

	gotVector, gotMetadata, err := DecodeRecord(encoded)
	require.NoError(t, err)
	assert.Equal(t, vector, gotVector)
	assert.Equal(t, metadata, gotMetadata)
}

func TestEncodeDecodeRecord_NilMetadata(t *testing.T) {
	vector := []float32{1, 2}

	encoded, err := EncodeRecord(vector, nil)
	require.NoError(t, err)

	gotVector, gotMetadata, err := DecodeRecord(encoded)
	require.NoError(t, err)
	assert.Equal(t, vector, gotVector)
	assert.Nil(t, gotMetadata)
}

func TestDecodeVector_TooShort_ReturnsError(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidVector)
}
