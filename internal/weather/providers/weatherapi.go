package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// WeatherAPIProvider implements weather.Provider for WeatherAPI.com. The hourly
// forecast is sampled every third hour to match the 3-hour log cadence.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	days    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    NameWeatherAPI,
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		days:    3,
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuit("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) CheckCredentials() error {
	if p.apiKey == "" {
		return fmt.Errorf("WEATHERAPI_API_KEY is not set: %w", weather.ErrCredentialMissing)
	}
	return nil
}

type weatherAPIHour struct {
	TimeEpoch  int64   `json:"time_epoch"`
	TempC      float64 `json:"temp_c"`
	FeelslikeC float64 `json:"feelslike_c"`
	Humidity   float64 `json:"humidity"`
	Condition  struct {
		Text string `json:"text"`
	} `json:"condition"`
	WindKph      float64 `json:"wind_kph"`
	ChanceOfRain float64 `json:"chance_of_rain"`
	Cloud        float64 `json:"cloud"`
}

func (p *WeatherAPIProvider) FetchForecast(ctx context.Context, loc weather.Location) (weather.ProviderForecast, error) {
	if err := p.CheckCredentials(); err != nil {
		return weather.ProviderForecast{}, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude))
		values.Set("days", fmt.Sprintf("%d", p.days))
		values.Set("aqi", "no")
		values.Set("alerts", "no")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderForecast{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Location struct {
			Name string `json:"name"`
		} `json:"location"`
		Forecast *struct {
			Forecastday []struct {
				Day struct {
					MaxtempC float64 `json:"maxtemp_c"`
					MintempC float64 `json:"mintemp_c"`
				} `json:"day"`
				Hour []weatherAPIHour `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ProviderForecast{}, fmt.Errorf("decode weatherapi forecast: %v: %w", err, weather.ErrUnexpectedResponse)
	}
	if payload.Forecast == nil {
		return weather.ProviderForecast{}, fmt.Errorf("weatherapi response has no forecast: %w", weather.ErrUnexpectedResponse)
	}

	var entries []weather.ProviderEntry
	for _, day := range payload.Forecast.Forecastday {
		for _, h := range day.Hour {
			ts := time.Unix(h.TimeEpoch, 0).UTC()
			if ts.Hour()%3 != 0 {
				continue
			}
			entries = append(entries, weather.ProviderEntry{
				ForecastTime:  ts,
				TempC:         h.TempC,
				FeelsLikeC:    h.FeelslikeC,
				TempMinC:      day.Day.MintempC,
				TempMaxC:      day.Day.MaxtempC,
				HumidityPct:   h.Humidity,
				Condition:     h.Condition.Text,
				WindSpeedMS:   kphToMS(h.WindKph),
				PrecipProb:    h.ChanceOfRain / 100,
				CloudinessPct: h.Cloud,
			})
		}
	}

	return weather.ProviderForecast{
		LocationName: payload.Location.Name,
		Entries:      entries,
	}, nil
}

func kphToMS(kph float64) float64 {
	return kph / 3.6
}
