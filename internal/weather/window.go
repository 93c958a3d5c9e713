package weather

import "time"

// DefaultHorizon is the forward span used to window forecasts for advice.
const DefaultHorizon = 48 * time.Hour

// SelectLatestBatch returns the records sharing the maximum FetchedAt,
// preserving their relative order. Membership is by exact timestamp equality.
func SelectLatestBatch(records []ForecastRecord) (Batch, error) {
	if len(records) == 0 {
		return Batch{}, ErrNoData
	}

	latest := records[0].FetchedAt
	for _, r := range records[1:] {
		if r.FetchedAt.After(latest) {
			latest = r.FetchedAt
		}
	}

	var out []ForecastRecord
	for _, r := range records {
		if r.FetchedAt.Equal(latest) {
			out = append(out, r)
		}
	}

	return Batch{
		Location:  Location{Latitude: out[0].Latitude, Longitude: out[0].Longitude},
		FetchedAt: latest,
		Records:   out,
	}, nil
}

// FilterWindow returns the records with now < ForecastTime <= now+horizon.
// A non-positive horizon falls back to DefaultHorizon. An empty result is not
// an error; callers decide what "nothing to report" means for them.
func FilterWindow(records []ForecastRecord, now time.Time, horizon time.Duration) []ForecastRecord {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	cutoff := now.Add(horizon)

	out := make([]ForecastRecord, 0, len(records))
	for _, r := range records {
		if r.ForecastTime.After(now) && !r.ForecastTime.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// LatestWindow selects the latest batch from records and keeps only the part
// inside (now, now+horizon].
func LatestWindow(records []ForecastRecord, now time.Time, horizon time.Duration) (Batch, error) {
	batch, err := SelectLatestBatch(records)
	if err != nil {
		return Batch{}, err
	}
	batch.Records = FilterWindow(batch.Records, now, horizon)
	return batch, nil
}
