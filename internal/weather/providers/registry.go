package providers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

const (
	NameOpenWeatherMap = "openweathermap"
	NameWeatherAPI     = "weatherapi"
	NameOpenMeteo      = "openmeteo"
)

// Options selects and configures a provider.
type Options struct {
	Name           string
	HTTPClient     *http.Client
	OpenWeatherKey string
	WeatherAPIKey  string
	GeocoderKey    string
	RPS            float64
	Burst          int
	Logger         *slog.Logger
}

// New builds the named provider wrapped in a rate limiter. A zero RPS disables limiting.
func New(opts Options) (weather.Provider, error) {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	var p weather.Provider
	switch opts.Name {
	case NameOpenWeatherMap, "":
		p = NewOpenWeatherProvider(client, opts.OpenWeatherKey)
	case NameWeatherAPI:
		p = NewWeatherAPIProvider(client, opts.WeatherAPIKey)
	case NameOpenMeteo:
		var resolver LabelResolver
		if opts.GeocoderKey != "" {
			resolver = NewGoogleGeocoder(opts.GeocoderKey)
		}
		p = NewOpenMeteoProvider(client, resolver, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown weather provider %q", opts.Name)
	}

	if opts.RPS <= 0 {
		return p, nil
	}
	return NewRateLimited(p, opts.RPS, opts.Burst), nil
}
