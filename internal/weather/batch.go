package weather

import "time"

// NewBatch converts a provider response into log records. Every record gets
// the same fetchedAt so the batch can later be isolated by exact equality.
// Precipitation probability is rescaled from 0..1 to percent.
func NewBatch(loc Location, forecast ProviderForecast, fetchedAt time.Time) Batch {
	fetchedAt = fetchedAt.UTC()
	records := make([]ForecastRecord, 0, len(forecast.Entries))

	name := forecast.LocationName
	if name == "" {
		name = "Unknown"
	}

	for _, e := range forecast.Entries {
		records = append(records, ForecastRecord{
			LocationName:             name,
			Latitude:                 loc.Latitude,
			Longitude:                loc.Longitude,
			ForecastTime:             e.ForecastTime.UTC(),
			TempC:                    e.TempC,
			FeelsLikeC:               e.FeelsLikeC,
			TempMinC:                 e.TempMinC,
			TempMaxC:                 e.TempMaxC,
			HumidityPercent:          e.HumidityPct,
			WeatherCondition:         e.Condition,
			WindSpeedMPS:             e.WindSpeedMS,
			PrecipitationProbPercent: e.PrecipProb * 100,
			CloudinessPercent:        e.CloudinessPct,
			FetchedAt:                fetchedAt,
		})
	}

	return Batch{
		Location:  loc,
		FetchedAt: fetchedAt,
		Records:   records,
	}
}
