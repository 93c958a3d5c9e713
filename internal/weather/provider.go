package weather

import (
	"context"
	"time"
)

// ProviderEntry is a single provider's normalized forecast step.
// PrecipProb is a probability in the 0..1 range.
type ProviderEntry struct {
	ForecastTime  time.Time
	TempC         float64
	FeelsLikeC    float64
	TempMinC      float64
	TempMaxC      float64
	HumidityPct   float64
	Condition     string
	WindSpeedMS   float64
	PrecipProb    float64
	CloudinessPct float64
}

// ProviderForecast is what a provider returns for one request: one location
// label for the whole response plus the forecast steps.
type ProviderForecast struct {
	LocationName string
	Entries      []ProviderEntry
}

// Provider abstracts a forecast data source (OpenWeatherMap, WeatherAPI, Open-Meteo).
//
// Failures wrap ErrCredentialMissing, ErrBadCredential, ErrTransport or
// ErrUnexpectedResponse so callers can tell them apart.
type Provider interface {
	Name() string
	FetchForecast(ctx context.Context, loc Location) (ProviderForecast, error)
}

// CredentialChecker is implemented by providers that need a local credential.
// CheckCredentials returns an error wrapping ErrCredentialMissing when it is absent.
type CredentialChecker interface {
	CheckCredentials() error
}

// ForecastLog is the append-only forecast log contract. Implementations must
// serialize Append calls within the process so batches never interleave.
type ForecastLog interface {
	// Append durably adds all records. Fails with ErrStoreUnavailable.
	Append(ctx context.Context, records []ForecastRecord) error
	// ReadAll returns every record in append order. Fails with ErrStoreMissing
	// when the log was never created and ErrStoreEmpty when it holds no rows.
	ReadAll(ctx context.Context) ([]ForecastRecord, error)
	// ReadSince returns records whose FetchedAt is at or after since.
	ReadSince(ctx context.Context, since time.Time) ([]ForecastRecord, error)
}
