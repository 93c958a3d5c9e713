package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// RateLimited wraps a provider with a token bucket so scheduled and on-demand
// fetches together stay inside the upstream quota.
type RateLimited struct {
	provider weather.Provider
	limiter  *rate.Limiter
}

func NewRateLimited(provider weather.Provider, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Name() string {
	return r.provider.Name()
}

func (r *RateLimited) CheckCredentials() error {
	if cc, ok := r.provider.(weather.CredentialChecker); ok {
		return cc.CheckCredentials()
	}
	return nil
}

func (r *RateLimited) FetchForecast(ctx context.Context, loc weather.Location) (weather.ProviderForecast, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return weather.ProviderForecast{}, fmt.Errorf("rate limit wait: %v: %w", err, weather.ErrTransport)
	}
	return r.provider.FetchForecast(ctx, loc)
}
