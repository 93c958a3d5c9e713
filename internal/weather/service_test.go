package weather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	forecast ProviderForecast
	err      error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchForecast(context.Context, Location) (ProviderForecast, error) {
	return p.forecast, p.err
}

type sliceLog struct {
	mu      sync.Mutex
	records []ForecastRecord
}

func (l *sliceLog) Append(_ context.Context, records []ForecastRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, records...)
	return nil
}

func (l *sliceLog) ReadAll(context.Context) ([]ForecastRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return nil, ErrStoreEmpty
	}
	return append([]ForecastRecord(nil), l.records...), nil
}

func (l *sliceLog) ReadSince(ctx context.Context, since time.Time) ([]ForecastRecord, error) {
	all, err := l.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []ForecastRecord
	for _, r := range all {
		if !r.FetchedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestService_StampsAreStrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	p := &fakeProvider{forecast: ProviderForecast{
		LocationName: "Tunis",
		Entries:      []ProviderEntry{{ForecastTime: frozen.Add(3 * time.Hour)}},
	}}
	svc := NewService(p, &sliceLog{}, nil)
	svc.SetClock(func() time.Time { return frozen })

	first, err := svc.FetchAndStore(context.Background(), Location{})
	require.NoError(t, err)
	second, err := svc.FetchAndStore(context.Background(), Location{})
	require.NoError(t, err)

	assert.True(t, first.FetchedAt.Equal(frozen))
	assert.True(t, second.FetchedAt.After(first.FetchedAt))

	records, err := svc.Log().ReadAll(context.Background())
	require.NoError(t, err)
	latest, err := SelectLatestBatch(records)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Len())
	assert.True(t, latest.FetchedAt.Equal(second.FetchedAt))
}

func TestService_FetchBatchErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(&fakeProvider{err: ErrTransport}, nil, nil).FetchBatch(ctx, Location{})
	assert.ErrorIs(t, err, ErrTransport)

	_, err = NewService(&fakeProvider{}, nil, nil).FetchBatch(ctx, Location{})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	_, err = NewService(nil, nil, nil).FetchBatch(ctx, Location{})
	assert.ErrorIs(t, err, ErrCredentialMissing)
	assert.ErrorIs(t, NewService(nil, nil, nil).CheckCredentials(), ErrCredentialMissing)
}

func TestService_AppendWithoutLog(t *testing.T) {
	svc := NewService(&fakeProvider{}, nil, nil)
	err := svc.Append(context.Background(), Batch{})
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestService_Upcoming(t *testing.T) {
	now := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	p := &fakeProvider{forecast: ProviderForecast{
		LocationName: "Tunis",
		Entries: []ProviderEntry{
			{ForecastTime: now.Add(-3 * time.Hour)},
			{ForecastTime: now.Add(3 * time.Hour)},
			{ForecastTime: now.Add(60 * time.Hour)},
		},
	}}
	svc := NewService(p, &sliceLog{}, nil)
	svc.SetClock(func() time.Time { return now })

	_, err := svc.Upcoming(context.Background(), now, DefaultHorizon)
	assert.ErrorIs(t, err, ErrStoreEmpty)

	_, err = svc.FetchAndStore(context.Background(), Location{})
	require.NoError(t, err)

	window, err := svc.Upcoming(context.Background(), now, DefaultHorizon)
	require.NoError(t, err)
	require.Equal(t, 1, window.Len())
	assert.True(t, window.Records[0].ForecastTime.Equal(now.Add(3*time.Hour)))
}
