package history

import (
	"context"
	"sync"
)

// MemoryBackend holds the history in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (b *MemoryBackend) LoadAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record{}, b.records...), nil
}

func (b *MemoryBackend) SaveAll(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append([]Record{}, records...)
	return nil
}
