package weather

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Service orchestrates fetching forecasts from a provider and persisting them
// to the forecast log.
type Service struct {
	provider Provider
	log      ForecastLog
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	lastFetched time.Time
}

// NewService creates a new Service.
func NewService(provider Provider, log ForecastLog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		log:      log,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the wall clock used to stamp batches. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the service's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Log exposes the underlying forecast log.
func (s *Service) Log() ForecastLog {
	return s.log
}

// CheckCredentials reports whether the provider has what it needs locally.
func (s *Service) CheckCredentials() error {
	if s.provider == nil {
		return fmt.Errorf("no weather provider configured: %w", ErrCredentialMissing)
	}
	if cc, ok := s.provider.(CredentialChecker); ok {
		return cc.CheckCredentials()
	}
	return nil
}

// FetchBatch retrieves a fresh forecast for loc and converts it into a batch
// stamped with a single fetched_at. Nothing is persisted.
func (s *Service) FetchBatch(ctx context.Context, loc Location) (Batch, error) {
	if s.provider == nil {
		return Batch{}, fmt.Errorf("no weather provider configured: %w", ErrCredentialMissing)
	}

	s.logger.DebugContext(ctx, "fetching forecast", "provider", s.provider.Name(), "location", loc.Key())

	forecast, err := s.provider.FetchForecast(ctx, loc)
	if err != nil {
		return Batch{}, fmt.Errorf("provider %s: %w", s.provider.Name(), err)
	}
	if len(forecast.Entries) == 0 {
		return Batch{}, fmt.Errorf("provider %s returned no forecast entries: %w", s.provider.Name(), ErrUnexpectedResponse)
	}

	batch := NewBatch(loc, forecast, s.stamp())
	s.logger.InfoContext(ctx, "fetched forecast",
		"provider", s.provider.Name(),
		"location", forecast.LocationName,
		"entries", batch.Len(),
	)
	return batch, nil
}

// Append writes a batch to the forecast log.
func (s *Service) Append(ctx context.Context, batch Batch) error {
	if s.log == nil {
		return fmt.Errorf("no forecast log configured: %w", ErrStoreUnavailable)
	}
	return s.log.Append(ctx, batch.Records)
}

// FetchAndStore fetches a batch for loc and appends it to the log.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) (Batch, error) {
	batch, err := s.FetchBatch(ctx, loc)
	if err != nil {
		return Batch{}, err
	}
	if err := s.Append(ctx, batch); err != nil {
		return batch, err
	}
	return batch, nil
}

// Upcoming reads the whole log and returns its latest batch restricted to
// (now, now+horizon]. The returned batch may hold zero records.
func (s *Service) Upcoming(ctx context.Context, now time.Time, horizon time.Duration) (Batch, error) {
	if s.log == nil {
		return Batch{}, fmt.Errorf("no forecast log configured: %w", ErrStoreUnavailable)
	}
	records, err := s.log.ReadAll(ctx)
	if err != nil {
		return Batch{}, err
	}
	return LatestWindow(records, now, horizon)
}

// stamp returns a fetched_at strictly after the previous one handed out by
// this service, so two ingestions never share a batch key.
func (s *Service) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC()
	if !t.After(s.lastFetched) {
		t = s.lastFetched.Add(time.Nanosecond)
	}
	s.lastFetched = t
	return t
}
