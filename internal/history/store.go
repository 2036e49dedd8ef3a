package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chen-001/gallery-app-clean/internal/metrics"
)

// Store serialises read-modify-write cycles over a Backend and keeps at most limit
// records, newest first.
type Store struct {
	mu      sync.Mutex
	backend Backend
	limit   int
	now     func() time.Time
	logger  *zap.Logger
}

// NewStore returns a Store over backend. A limit <= 0 means DefaultLimit.
func NewStore(backend Backend, limit int, logger *zap.Logger) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, limit: limit, now: time.Now, logger: logger}
}

// Limit returns the maximum number of records kept.
func (s *Store) Limit() int { return s.limit }

// List returns all records, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.backend.LoadAll(ctx)
	metrics.ObserveHistory("list", err)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return records, nil
}

// Get returns the record with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save stamps rec with an id (when empty) and the current UTC time, puts it at the
// front of the list, drops records beyond the limit and persists. The stored record
// is returned.
func (s *Store) Save(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.backend.LoadAll(ctx)
	if err != nil {
		metrics.ObserveHistory("save", err)
		return Record{}, fmt.Errorf("load history: %w", err)
	}
	if rec.ID == "" {
		rec.ID = NewID()
	}
	rec.Timestamp = s.now().UTC()
	if rec.Tables == nil {
		rec.Tables = []string{}
	}
	if rec.Missing == nil {
		rec.Missing = []string{}
	}

	out := make([]Record, 0, len(records)+1)
	out = append(out, rec)
	for _, r := range records {
		// a re-saved id replaces its older copy
		if r.ID != rec.ID {
			out = append(out, r)
		}
	}
	dropped := 0
	if len(out) > s.limit {
		dropped = len(out) - s.limit
		out = out[:s.limit]
	}
	err = s.backend.SaveAll(ctx, out)
	metrics.ObserveHistory("save", err)
	if err != nil {
		return Record{}, fmt.Errorf("save history: %w", err)
	}
	s.logger.Info("history record saved",
		zap.String("id", rec.ID),
		zap.String("dataset", rec.Dataset),
		zap.Int("records", len(out)),
		zap.Int("dropped", dropped))
	return rec, nil
}

// Delete removes the record with id. It reports false, leaving the history untouched,
// when no such record exists.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.backend.LoadAll(ctx)
	if err != nil {
		metrics.ObserveHistory("delete", err)
		return false, fmt.Errorf("load history: %w", err)
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	if len(out) == len(records) {
		metrics.ObserveHistory("delete", nil)
		return false, nil
	}
	err = s.backend.SaveAll(ctx, out)
	metrics.ObserveHistory("delete", err)
	if err != nil {
		return false, fmt.Errorf("save history: %w", err)
	}
	s.logger.Info("history record deleted", zap.String("id", id))
	return true, nil
}
