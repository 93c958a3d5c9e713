package weather

import (
	"fmt"
	"time"
)

// Location is the geographic point a forecast is retrieved for.
type Location struct {
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Key returns a canonical string key for logging and labels.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}

// ForecastRecord is one 3-hour prediction for one location as it is kept in
// the forecast log. FetchedAt is shared by every record of one ingestion batch.
type ForecastRecord struct {
	LocationName             string    `json:"location_name"`
	Latitude                 float64   `json:"latitude"`
	Longitude                float64   `json:"longitude"`
	ForecastTime             time.Time `json:"forecast_time"`
	TempC                    float64   `json:"temp_c"`
	FeelsLikeC               float64   `json:"feels_like_c"`
	TempMinC                 float64   `json:"temp_min_c"`
	TempMaxC                 float64   `json:"temp_max_c"`
	HumidityPercent          float64   `json:"humidity_percent"`
	WeatherCondition         string    `json:"weather_condition"`
	WindSpeedMPS             float64   `json:"wind_speed_mps"`
	PrecipitationProbPercent float64   `json:"precipitation_prob_percent"`
	CloudinessPercent        float64   `json:"cloudiness_percent"`
	FetchedAt                time.Time `json:"fetched_at"`
}

// Batch is the set of records retrieved by one ingestion call.
// Records are ordered as the provider returned them.
type Batch struct {
	Location  Location         `json:"location"`
	FetchedAt time.Time        `json:"fetched_at"`
	Records   []ForecastRecord `json:"records"`
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Records)
}
