// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

const redacted = "***REDACTED***"

// SecretString keeps credentials out of logs and JSON dumps. Use Unmask for
// the raw value.
type SecretString string

func (s SecretString) String() string {
	return redacted
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(redacted)), nil
}

func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a value was provided.
func (s SecretString) IsSet() bool {
	return s != ""
}

type Config struct {
	Server    ServerConfig
	Weather   WeatherConfig
	Advice    AdviceConfig
	Store     StoreConfig
	Observers ObserverConfig
	MQTT      MQTTConfig
}

type ServerConfig struct {
	Host        string   `envconfig:"HOST" default:"127.0.0.1"`
	Port        int      `envconfig:"PORT" default:"8000" validate:"gte=1,lte=65535"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:8000,http://127.0.0.1:8000,null"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

type WeatherConfig struct {
	Provider       string        `envconfig:"WEATHER_PROVIDER" default:"openweathermap" validate:"oneof=openweathermap weatherapi openmeteo"`
	OpenWeatherKey SecretString  `envconfig:"OPENWEATHERMAP_API_KEY"`
	WeatherAPIKey  SecretString  `envconfig:"WEATHERAPI_API_KEY"`
	GeocoderKey    SecretString  `envconfig:"GEOCODER_API_KEY"`
	Latitude       float64       `envconfig:"DEFAULT_LATITUDE" default:"36.8065" validate:"gte=-90,lte=90"`
	Longitude      float64       `envconfig:"DEFAULT_LONGITUDE" default:"10.1815" validate:"gte=-180,lte=180"`
	FetchInterval  time.Duration `envconfig:"FETCH_INTERVAL" default:"3h" validate:"gt=0"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	RPS            float64       `envconfig:"PROVIDER_RPS" default:"1" validate:"gte=0"`
	Burst          int           `envconfig:"PROVIDER_BURST" default:"5" validate:"gte=1"`
}

type AdviceConfig struct {
	APIKey  SecretString  `envconfig:"OPENAI_API_KEY"`
	Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini" validate:"required"`
	BaseURL string        `envconfig:"OPENAI_BASE_URL" validate:"omitempty,url"`
	Timeout time.Duration `envconfig:"ADVICE_TIMEOUT" default:"30s" validate:"gt=0"`
}

type StoreConfig struct {
	Backend            string        `envconfig:"STORE_BACKEND" default:"csv" validate:"oneof=csv sqlite memory"`
	ForecastLogPath    string        `envconfig:"FORECAST_LOG_PATH" default:"weather_forecast_log.csv"`
	SQLitePath         string        `envconfig:"SQLITE_PATH" default:"forecast_log.db"`
	RecommendationPath string        `envconfig:"RECOMMENDATION_PATH" default:"recommendation.txt" validate:"required"`
	Horizon            time.Duration `envconfig:"FORECAST_HORIZON" default:"48h" validate:"gt=0"`
}

type ObserverConfig struct {
	QueueSize   int           `envconfig:"OBSERVER_QUEUE_SIZE" default:"16" validate:"gte=1"`
	SendTimeout time.Duration `envconfig:"OBSERVER_SEND_TIMEOUT" default:"5s" validate:"gt=0"`
}

type MQTTConfig struct {
	Broker      string `envconfig:"MQTT_BROKER"`
	ClientID    string `envconfig:"MQTT_CLIENT_ID" default:"irrigation-assistant"`
	SensorTopic string `envconfig:"MQTT_SENSOR_TOPIC" default:"irrigation/sensors"`
	StateTopic  string `envconfig:"MQTT_STATE_TOPIC" default:"irrigation/state"`
}

// Load reads .env if present, then the environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for i, o := range cfg.Server.CORSOrigins {
		cfg.Server.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// DefaultLocation is used when a request names no coordinates.
func (c *Config) DefaultLocation() weather.Location {
	return weather.Location{Latitude: c.Weather.Latitude, Longitude: c.Weather.Longitude}
}

// MQTTEnabled reports whether a broker is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

// SlogLevel converts the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Server.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
