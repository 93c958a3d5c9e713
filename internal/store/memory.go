package store

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// MemoryLog is a concurrency-safe in-memory forecast log. It reports
// ErrStoreMissing until the first non-empty append, like a file that was
// never created.
type MemoryLog struct {
	mu      sync.RWMutex
	created bool
	records []weather.ForecastRecord
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append adds all records as one unit.
func (s *MemoryLog) Append(ctx context.Context, records []weather.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.created = true
	s.records = append(s.records, records...)
	return nil
}

// ReadAll returns a copy of every record in append order.
func (s *MemoryLog) ReadAll(_ context.Context) ([]weather.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.created {
		return nil, weather.ErrStoreMissing
	}
	if len(s.records) == 0 {
		return nil, weather.ErrStoreEmpty
	}

	out := make([]weather.ForecastRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// ReadSince returns the records fetched at or after since.
func (s *MemoryLog) ReadSince(ctx context.Context, since time.Time) ([]weather.ForecastRecord, error) {
	all, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterSince(all, since), nil
}

func filterSince(records []weather.ForecastRecord, since time.Time) []weather.ForecastRecord {
	out := make([]weather.ForecastRecord, 0, len(records))
	for _, r := range records {
		if !r.FetchedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out
}

var _ weather.ForecastLog = (*MemoryLog)(nil)
