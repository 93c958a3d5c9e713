package weather

import "errors"

var (
	// ErrNoData is returned by SelectLatestBatch for an empty input.
	ErrNoData = errors.New("no forecast records")
	// ErrNoUpcomingForecast means the latest batch has nothing inside the horizon.
	ErrNoUpcomingForecast = errors.New("no upcoming forecast in horizon")

	ErrStoreEmpty       = errors.New("forecast log is empty")
	ErrStoreMissing     = errors.New("forecast log does not exist")
	ErrStoreUnavailable = errors.New("forecast log unavailable")

	ErrCredentialMissing  = errors.New("weather provider credential missing")
	ErrBadCredential      = errors.New("weather provider rejected credential")
	ErrTransport          = errors.New("weather provider transport error")
	ErrUnexpectedResponse = errors.New("unexpected weather provider response")
)
