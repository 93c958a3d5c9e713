package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(fetchedAt, forecastTime time.Time, temp float64) ForecastRecord {
	return ForecastRecord{
		LocationName: "Tunis",
		Latitude:     36.8065,
		Longitude:    10.1815,
		ForecastTime: forecastTime,
		TempC:        temp,
		FetchedAt:    fetchedAt,
	}
}

func TestSelectLatestBatch_Empty(t *testing.T) {
	_, err := SelectLatestBatch(nil)
	require.ErrorIs(t, err, ErrNoData)
}

func TestSelectLatestBatch_KeepsOnlyMaximum(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1, t2, t3 := base, base.Add(3*time.Hour), base.Add(6*time.Hour)

	records := []ForecastRecord{
		record(t1, base.Add(time.Hour), 1),
		record(t3, base.Add(time.Hour), 2),
		record(t2, base.Add(time.Hour), 3),
		record(t3, base.Add(2*time.Hour), 4),
		record(t1, base.Add(2*time.Hour), 5),
	}

	batch, err := SelectLatestBatch(records)
	require.NoError(t, err)
	assert.True(t, batch.FetchedAt.Equal(t3))
	require.Len(t, batch.Records, 2)
	// relative order is preserved
	assert.Equal(t, 2.0, batch.Records[0].TempC)
	assert.Equal(t, 4.0, batch.Records[1].TempC)
	for _, r := range batch.Records {
		assert.True(t, r.FetchedAt.Equal(t3))
	}
}

func TestSelectLatestBatch_ExactEqualityOnly(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []ForecastRecord{
		record(base, base, 1),
		record(base.Add(time.Millisecond), base, 2),
	}

	batch, err := SelectLatestBatch(records)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, 2.0, batch.Records[0].TempC)
}

func TestFilterWindow_Boundaries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fetched := now.Add(-time.Hour)

	records := []ForecastRecord{
		record(fetched, now.Add(-3*time.Hour), 1),
		// exactly now is excluded
		record(fetched, now, 2),
		record(fetched, now.Add(time.Nanosecond), 3),
		record(fetched, now.Add(24*time.Hour), 4),
		// exactly at the horizon is included
		record(fetched, now.Add(48*time.Hour), 5),
		record(fetched, now.Add(48*time.Hour+time.Second), 6),
	}

	got := FilterWindow(records, now, 48*time.Hour)
	temps := make([]float64, 0, len(got))
	for _, r := range got {
		temps = append(temps, r.TempC)
	}
	assert.Equal(t, []float64{3, 4, 5}, temps)
}

func TestFilterWindow_DefaultHorizon(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []ForecastRecord{
		record(now, now.Add(47*time.Hour), 1),
		record(now, now.Add(49*time.Hour), 2),
	}

	got := FilterWindow(records, now, 0)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].TempC)
}

func TestFilterWindow_NoMatchIsEmptyNotNil(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := FilterWindow([]ForecastRecord{record(now, now.Add(-time.Hour), 1)}, now, DefaultHorizon)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLatestWindow_TwoBatches(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := now.Add(-6 * time.Hour)
	t2 := now.Add(-1 * time.Hour)

	records := []ForecastRecord{
		record(t1, now.Add(10*time.Hour), 10),
		record(t2, now.Add(10*time.Hour), 20),
		record(t2, now.Add(50*time.Hour), 30),
	}

	batch, err := LatestWindow(records, now, DefaultHorizon)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, 20.0, batch.Records[0].TempC)
	assert.True(t, batch.FetchedAt.Equal(t2))
}
