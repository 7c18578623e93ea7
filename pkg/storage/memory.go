package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend is the in-memory storage variant: a mutex-guarded map from
// id to record, with page cursors encoding an offset into the current
// insertion-ordered key list (no snapshot is taken between pages).
type MemoryBackend struct {
	mu         sync.RWMutex
	records    map[string]Record
	order      []string // insertion order, used for list_ids stability
	dimensions int
	closed     bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]Record),
	}
}

func (m *MemoryBackend) Store(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errBackendClosed
	}

	cp := make([]float32, len(vector))
	copy(cp, vector)

	if _, exists := m.records[id]; !exists {
		m.order = append(m.order, id)
	}
	m.records[id] = Record{ID: id, Vector: cp, Metadata: metadata}
	if m.dimensions == 0 && len(vector) > 0 {
		m.dimensions = len(vector)
	}
	return nil
}

func (m *MemoryBackend) Retrieve(ctx context.Context, id string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Record{}, false, errBackendClosed
	}
	rec, ok := m.records[id]
	if !ok {
		return Record{}, false, nil
	}
	cp := make([]float32, len(rec.Vector))
	copy(cp, rec.Vector)
	return Record{ID: rec.ID, Vector: cp, Metadata: rec.Metadata}, true, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errBackendClosed
	}
	toDelete := make(map[string]bool, len(ids))
	for _, id := range ids {
		toDelete[id] = true
		delete(m.records, id)
	}
	if len(toDelete) == 0 {
		return nil
	}
	kept := m.order[:0:0]
	for _, id := range m.order {
		if !toDelete[id] {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return nil
}

func (m *MemoryBackend) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errBackendClosed
	}
	rec, ok := m.records[id]
	if !ok {
		return errRecordNotFound(id)
	}
	rec.Metadata = metadata
	m.records[id] = rec
	return nil
}

func (m *MemoryBackend) ListIDs(ctx context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errBackendClosed
	}
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemoryBackend) ListIDsPaged(ctx context.Context, pageSize int, cursor string) (Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Page{}, errBackendClosed
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		return Page{}, fmt.Errorf("page_size must be in (0, %d]", MaxPageSize)
	}

	offset := 0
	if cursor != "" {
		var err error
		offset, err = parseCursor(cursor)
		if err != nil {
			return Page{}, err
		}
	}
	if offset < 0 || offset > len(m.order) {
		return Page{}, fmt.Errorf("invalid cursor")
	}

	end := offset + pageSize
	hasMore := end < len(m.order)
	if end > len(m.order) {
		end = len(m.order)
	}

	ids := make([]string, end-offset)
	copy(ids, m.order[offset:end])

	page := Page{IDs: ids, HasMore: hasMore}
	if hasMore {
		page.NextCursor = formatCursor(end)
	}
	return page, nil
}

func (m *MemoryBackend) StreamIDs(ctx context.Context) (<-chan string, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, errBackendClosed
	}
	snapshot := make([]string, len(m.order))
	copy(snapshot, m.order)
	m.mu.RUnlock()

	out := make(chan string)
	go func() {
		defer close(out)
		for _, id := range snapshot {
			select {
			case out <- id:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *MemoryBackend) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Type:        "memory",
		VectorCount: len(m.records),
		Dimensions:  m.dimensions,
	}, nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func parseCursor(cursor string) (int, error) {
	var offset int
	if _, err := fmt.Sscanf(cursor, "%d", &offset); err != nil {
		return 0, fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}
	return offset, nil
}

func formatCursor(offset int) string {
	return fmt.Sprintf("%d", offset)
}
