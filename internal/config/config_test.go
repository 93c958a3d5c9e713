package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv removes keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			t.Setenv(k, v)
			require.NoError(t, os.Unsetenv(k))
		}
	}
}

var envKeys = []string{
	"HOST", "PORT", "CORS_ORIGINS", "LOG_LEVEL",
	"WEATHER_PROVIDER", "DEFAULT_LATITUDE", "DEFAULT_LONGITUDE", "FETCH_INTERVAL",
	"OPENAI_MODEL", "OPENAI_BASE_URL", "STORE_BACKEND", "FORECAST_LOG_PATH",
	"FORECAST_HORIZON", "OBSERVER_QUEUE_SIZE", "MQTT_BROKER",
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, envKeys...)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Addr())
	assert.Equal(t, []string{"http://localhost:8000", "http://127.0.0.1:8000", "null"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "openweathermap", cfg.Weather.Provider)
	assert.Equal(t, 36.8065, cfg.DefaultLocation().Latitude)
	assert.Equal(t, 10.1815, cfg.DefaultLocation().Longitude)
	assert.Equal(t, 3*time.Hour, cfg.Weather.FetchInterval)
	assert.Equal(t, "gpt-4o-mini", cfg.Advice.Model)
	assert.Equal(t, "csv", cfg.Store.Backend)
	assert.Equal(t, "weather_forecast_log.csv", cfg.Store.ForecastLogPath)
	assert.Equal(t, 48*time.Hour, cfg.Store.Horizon)
	assert.Equal(t, 16, cfg.Observers.QueueSize)
	assert.False(t, cfg.MQTTEnabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFromEnvironment(t *testing.T) {
	unsetEnv(t, envKeys...)
	t.Setenv("PORT", "9090")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("CORS_ORIGINS", "https://farm.example, null")
	t.Setenv("WEATHER_PROVIDER", "openmeteo")
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("FORECAST_HORIZON", "24h")
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, []string{"https://farm.example", "null"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "openmeteo", cfg.Weather.Provider)
	assert.Equal(t, "sk-secret", cfg.Advice.APIKey.Unmask())
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Store.Horizon)
	assert.True(t, cfg.MQTTEnabled())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"WEATHER_PROVIDER": "darksky",
		"STORE_BACKEND":    "postgres",
		"DEFAULT_LATITUDE": "123",
		"PORT":             "0",
		"FETCH_INTERVAL":   "soon",
		"OPENAI_BASE_URL":  "not a url",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			unsetEnv(t, envKeys...)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSecretStringRedacts(t *testing.T) {
	s := SecretString("sk-live-123")

	assert.Equal(t, redacted, s.String())
	assert.Equal(t, redacted, fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%+v", AdviceConfig{APIKey: s}), "sk-live-123")

	b, err := json.Marshal(AdviceConfig{APIKey: s})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "sk-live-123")

	assert.Equal(t, "sk-live-123", s.Unmask())
	assert.True(t, s.IsSet())
	assert.False(t, SecretString("").IsSet())
}
