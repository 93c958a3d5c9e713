package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// LabelResolver turns coordinates into a human-readable place name.
type LabelResolver interface {
	Label(ctx context.Context, loc weather.Location) (string, error)
}

var errNoAddress = errors.New("no address for location")

// GoogleGeocoder resolves labels with the Google reverse geocoding API.
type GoogleGeocoder struct {
	apiKey string

	mu    sync.Mutex
	cache map[string]string
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey, cache: make(map[string]string)}
}

// geocoderMu guards the package-level key in the geocoder library.
var geocoderMu sync.Mutex

func (g *GoogleGeocoder) Label(ctx context.Context, loc weather.Location) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	if name, ok := g.cache[loc.Key()]; ok {
		g.mu.Unlock()
		return name, nil
	}
	g.mu.Unlock()

	geocoderMu.Lock()
	geocoder.ApiKey = g.apiKey
	addresses, err := geocoder.GeocodingReverse(geocoder.Location{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	})
	geocoderMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("reverse geocode %s: %w", loc.Key(), err)
	}

	name := ""
	for _, a := range addresses {
		if a.City != "" {
			name = a.City
			break
		}
	}
	if name == "" {
		return "", errNoAddress
	}

	g.mu.Lock()
	g.cache[loc.Key()] = name
	g.mu.Unlock()
	return name, nil
}
