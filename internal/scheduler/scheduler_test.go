package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/irrigation-assistant/internal/livestate"
	"github.com/i474232898/irrigation-assistant/internal/store"
	"github.com/i474232898/irrigation-assistant/internal/weather"
)

var testNow = time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)

type stubProvider struct {
	mu    sync.Mutex
	calls []weather.Location
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) FetchForecast(_ context.Context, loc weather.Location) (weather.ProviderForecast, error) {
	p.mu.Lock()
	p.calls = append(p.calls, loc)
	p.mu.Unlock()
	if p.err != nil {
		return weather.ProviderForecast{}, p.err
	}
	return weather.ProviderForecast{
		LocationName: "Tunis",
		Entries: []weather.ProviderEntry{
			{ForecastTime: testNow.Add(-time.Hour), Condition: "past", PrecipProb: 0.9},
			{ForecastTime: testNow.Add(3 * time.Hour), Condition: "light rain", PrecipProb: 0.4},
			{ForecastTime: testNow.Add(6 * time.Hour), Condition: "clear sky", PrecipProb: 0},
		},
	}, nil
}

type recorder struct {
	mu      sync.Mutex
	results []error
}

func (r *recorder) Append(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, err)
}

func newTestScheduler(t *testing.T, provider *stubProvider, locs ...weather.Location) (*Scheduler, weather.ForecastLog, *livestate.Service, *recorder) {
	t.Helper()
	log := store.NewMemoryLog()
	svc := weather.NewService(provider, log, nil)
	svc.SetClock(func() time.Time { return testNow })

	hub := livestate.NewHub(livestate.HubOptions{})
	t.Cleanup(hub.Close)
	state := livestate.NewService(livestate.NewStore(), hub, nil, nil)
	rec := &recorder{}

	s := New(Options{
		Locations: locs,
		Ingestion: svc,
		Sink:      state,
		Recorder:  rec,
	})
	s.now = func() time.Time { return testNow }
	return s, log, state, rec
}

func TestRunOnceFetchesEveryLocation(t *testing.T) {
	provider := &stubProvider{}
	a := weather.Location{Latitude: 36.8, Longitude: 10.18}
	b := weather.Location{Latitude: 35.8, Longitude: 10.6}
	s, log, state, rec := newTestScheduler(t, provider, a, b)

	require.NoError(t, s.RunOnce(context.Background()))

	assert.ElementsMatch(t, []weather.Location{a, b}, provider.calls)
	records, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 6)
	assert.Equal(t, []error{nil, nil}, rec.results)

	snap := state.Snapshot()
	assert.Equal(t, "light rain", snap.Forecast)
	assert.InDelta(t, 40.0, snap.RainProb, 1e-9)
}

func TestRunOnceReportsFetchFailure(t *testing.T) {
	provider := &stubProvider{err: weather.ErrTransport}
	s, _, state, rec := newTestScheduler(t, provider, weather.Location{Latitude: 1, Longitude: 1})

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, weather.ErrTransport)
	assert.Empty(t, rec.results)
	assert.Equal(t, livestate.DefaultState(), state.Snapshot())
}

type sinkFunc func(map[string]json.RawMessage, string) (map[string]any, error)

func (f sinkFunc) Update(p map[string]json.RawMessage, source string) (map[string]any, error) {
	return f(p, source)
}

func TestSyncStateUsesForecastSource(t *testing.T) {
	provider := &stubProvider{}
	s, _, _, _ := newTestScheduler(t, provider, weather.Location{Latitude: 1, Longitude: 1})

	var got string
	s.opts.Sink = sinkFunc(func(_ map[string]json.RawMessage, source string) (map[string]any, error) {
		got = source
		return nil, nil
	})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, livestate.SourceForecast, got)
}

func TestStartWithoutLocations(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Start())
	s.Stop()
}
