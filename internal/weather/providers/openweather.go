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

// OpenWeatherProvider implements weather.Provider against the OpenWeatherMap
// 5 day / 3 hour forecast endpoint.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    NameOpenWeatherMap,
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuit("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// CheckCredentials fails when no API key is configured.
func (p *OpenWeatherProvider) CheckCredentials() error {
	if p.apiKey == "" {
		return fmt.Errorf("OPENWEATHERMAP_API_KEY is not set: %w", weather.ErrCredentialMissing)
	}
	return nil
}

type owmForecastEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Pop    float64 `json:"pop"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
}

func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, loc weather.Location) (weather.ProviderForecast, error) {
	if err := p.CheckCredentials(); err != nil {
		return weather.ProviderForecast{}, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", loc.Latitude))
		values.Set("lon", fmt.Sprintf("%f", loc.Longitude))
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderForecast{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		City struct {
			Name string `json:"name"`
		} `json:"city"`
		List *[]owmForecastEntry `json:"list"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ProviderForecast{}, fmt.Errorf("decode openweather forecast: %v: %w", err, weather.ErrUnexpectedResponse)
	}
	if payload.List == nil {
		return weather.ProviderForecast{}, fmt.Errorf("openweather response has no list: %w", weather.ErrUnexpectedResponse)
	}

	entries := make([]weather.ProviderEntry, 0, len(*payload.List))
	for _, item := range *payload.List {
		cond := ""
		if len(item.Weather) > 0 {
			cond = item.Weather[0].Description
		}
		entries = append(entries, weather.ProviderEntry{
			ForecastTime:  time.Unix(item.Dt, 0).UTC(),
			TempC:         item.Main.Temp,
			FeelsLikeC:    item.Main.FeelsLike,
			TempMinC:      item.Main.TempMin,
			TempMaxC:      item.Main.TempMax,
			HumidityPct:   item.Main.Humidity,
			Condition:     cond,
			WindSpeedMS:   item.Wind.Speed,
			PrecipProb:    item.Pop,
			CloudinessPct: item.Clouds.All,
		})
	}

	return weather.ProviderForecast{
		LocationName: payload.City.Name,
		Entries:      entries,
	}, nil
}
