package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// OpenMeteoProvider implements weather.Provider for Open-Meteo. It needs no key;
// the location label comes from an optional LabelResolver.
type OpenMeteoProvider struct {
	name     string
	baseURL  string
	resolver LabelResolver
	logger   *slog.Logger
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, resolver LabelResolver, logger *slog.Logger) *OpenMeteoProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenMeteoProvider{
		name:     NameOpenMeteo,
		baseURL:  "https://api.open-meteo.com/v1/forecast",
		resolver: resolver,
		logger:   logger,
		httpCfg:  defaultHTTPConfig(client),
		circuit:  newCircuit("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) FetchForecast(ctx context.Context, loc weather.Location) (weather.ProviderForecast, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("hourly", "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation_probability,weather_code,wind_speed_10m,cloud_cover")
		values.Set("daily", "temperature_2m_max,temperature_2m_min")
		values.Set("wind_speed_unit", "ms")
		values.Set("forecast_days", "3")
		values.Set("timeformat", "unixtime")
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderForecast{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly *struct {
			Time                     []int64   `json:"time"`
			Temperature2m            []float64 `json:"temperature_2m"`
			ApparentTemperature      []float64 `json:"apparent_temperature"`
			RelativeHumidity2m       []float64 `json:"relative_humidity_2m"`
			PrecipitationProbability []float64 `json:"precipitation_probability"`
			WeatherCode              []int     `json:"weather_code"`
			WindSpeed10m             []float64 `json:"wind_speed_10m"`
			CloudCover               []float64 `json:"cloud_cover"`
		} `json:"hourly"`
		Daily struct {
			Time             []int64   `json:"time"`
			Temperature2mMax []float64 `json:"temperature_2m_max"`
			Temperature2mMin []float64 `json:"temperature_2m_min"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ProviderForecast{}, fmt.Errorf("decode openmeteo forecast: %v: %w", err, weather.ErrUnexpectedResponse)
	}
	h := payload.Hourly
	if h == nil {
		return weather.ProviderForecast{}, fmt.Errorf("openmeteo response has no hourly block: %w", weather.ErrUnexpectedResponse)
	}
	n := len(h.Time)
	for _, l := range []int{len(h.Temperature2m), len(h.ApparentTemperature), len(h.RelativeHumidity2m),
		len(h.PrecipitationProbability), len(h.WeatherCode), len(h.WindSpeed10m), len(h.CloudCover)} {
		if l != n {
			return weather.ProviderForecast{}, fmt.Errorf("openmeteo hourly arrays differ in length: %w", weather.ErrUnexpectedResponse)
		}
	}

	daily := make(map[string][2]float64, len(payload.Daily.Time))
	for i, d := range payload.Daily.Time {
		if i < len(payload.Daily.Temperature2mMin) && i < len(payload.Daily.Temperature2mMax) {
			daily[time.Unix(d, 0).UTC().Format(time.DateOnly)] = [2]float64{
				payload.Daily.Temperature2mMin[i], payload.Daily.Temperature2mMax[i],
			}
		}
	}

	var entries []weather.ProviderEntry
	for i := 0; i < n; i++ {
		ts := time.Unix(h.Time[i], 0).UTC()
		if ts.Hour()%3 != 0 {
			continue
		}
		minMax, ok := daily[ts.Format(time.DateOnly)]
		if !ok {
			minMax = [2]float64{h.Temperature2m[i], h.Temperature2m[i]}
		}
		entries = append(entries, weather.ProviderEntry{
			ForecastTime:  ts,
			TempC:         h.Temperature2m[i],
			FeelsLikeC:    h.ApparentTemperature[i],
			TempMinC:      minMax[0],
			TempMaxC:      minMax[1],
			HumidityPct:   h.RelativeHumidity2m[i],
			Condition:     describeOpenMeteoCode(h.WeatherCode[i]),
			WindSpeedMS:   h.WindSpeed10m[i],
			PrecipProb:    h.PrecipitationProbability[i] / 100,
			CloudinessPct: h.CloudCover[i],
		})
	}

	return weather.ProviderForecast{
		LocationName: p.label(ctx, loc),
		Entries:      entries,
	}, nil
}

func (p *OpenMeteoProvider) label(ctx context.Context, loc weather.Location) string {
	fallback := fmt.Sprintf("%.4f,%.4f", loc.Latitude, loc.Longitude)
	if p.resolver == nil {
		return fallback
	}
	name, err := p.resolver.Label(ctx, loc)
	if err != nil || name == "" {
		if err != nil {
			p.logger.WarnContext(ctx, "reverse geocoding failed", "location", loc.Key(), "error", err)
		}
		return fallback
	}
	return name
}

// describeOpenMeteoCode maps WMO weather codes to a short description.
func describeOpenMeteoCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code == 1:
		return "mainly clear"
	case code == 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
