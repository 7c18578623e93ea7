package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	disk, err := NewDiskBackend(DiskConfig{Path: filepath.Join(t.TempDir(), "vectors.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"disk":   disk,
	}
}

func TestBackend_StoreThenRetrieve_RoundTrips(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			vector := []float32{1, 2, 3}
			metadata := map[string]any{"label": "a"}

			require.NoError(t, backend.Store(ctx, "v1", vector, metadata))

			rec, ok, err := backend.Retrieve(ctx, "v1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, vector, rec.Vector)
			assert.Equal(t, metadata, rec.Metadata)
		})
	}
}

func TestBackend_Retrieve_MissingID_ReturnsMiss(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := backend.Retrieve(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBackend_Delete_ToleratesMissingIDs(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, backend.Store(ctx, "v1", []float32{1}, nil))
			require.NoError(t, backend.Delete(ctx, []string{"v1", "does-not-exist"}))

			_, ok, err := backend.Retrieve(ctx, "v1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBackend_UpdateMetadata_MissingID_ReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := backend.UpdateMetadata(ctx, "missing", map[string]any{"k": "v"})
			assert.Error(t, err)
		})
	}
}

func TestBackend_EnumerationCompleteness(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const total = 23
			for i := 0; i < total; i++ {
				require.NoError(t, backend.Store(ctx, idFor(i), []float32{float32(i)}, nil))
			}

			all, err := backend.ListIDs(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, total)

			var paged []string
			cursor := ""
			for {
				page, err := backend.ListIDsPaged(ctx, 5, cursor)
				require.NoError(t, err)
				paged = append(paged, page.IDs...)
				if !page.HasMore {
					break
				}
				cursor = page.NextCursor
			}
			assert.ElementsMatch(t, all, paged)

			ch, err := backend.StreamIDs(ctx)
			require.NoError(t, err)
			var streamed []string
			for id := range ch {
				streamed = append(streamed, id)
			}
			assert.ElementsMatch(t, all, streamed)
		})
	}
}

func TestBackend_Stats_ReportsCount(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, backend.Store(ctx, "v1", []float32{1, 2}, nil))
			require.NoError(t, backend.Store(ctx, "v2", []float32{3, 4}, nil))

			stats, err := backend.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, stats.VectorCount)
			assert.Equal(t, 2, stats.Dimensions)
		})
	}
}

func idFor(i int) string {
	return "id-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
