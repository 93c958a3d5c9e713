package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/irrigation-assistant/internal/advice"
	"github.com/i474232898/irrigation-assistant/internal/advisor"
	"github.com/i474232898/irrigation-assistant/internal/config"
	"github.com/i474232898/irrigation-assistant/internal/livestate"
	"github.com/i474232898/irrigation-assistant/internal/store"
	"github.com/i474232898/irrigation-assistant/internal/weather"
	"github.com/i474232898/irrigation-assistant/internal/weather/providers"
)

// components is everything the subcommands share.
type components struct {
	weather        *weather.Service
	log            weather.ForecastLog
	generator      *advice.OpenAIGenerator
	orchestrator   *advisor.Orchestrator
	chat           *advisor.ChatResponder
	state          *livestate.Service
	advisorMetrics *advisor.Metrics
	metrics        http.Handler

	closers []io.Closer
}

func build(cfg *config.Config, logger *slog.Logger) (*components, error) {
	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.Weather.HTTPTimeout}

	provider, err := providers.New(providers.Options{
		Name:           cfg.Weather.Provider,
		HTTPClient:     httpClient,
		OpenWeatherKey: cfg.Weather.OpenWeatherKey.Unmask(),
		WeatherAPIKey:  cfg.Weather.WeatherAPIKey.Unmask(),
		GeocoderKey:    cfg.Weather.GeocoderKey.Unmask(),
		RPS:            cfg.Weather.RPS,
		Burst:          cfg.Weather.Burst,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	c := &components{}
	c.log, err = c.openLog(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	c.weather = weather.NewService(provider, c.log, logger)

	c.generator = advice.NewOpenAIGenerator(advice.Options{
		APIKey:  cfg.Advice.APIKey.Unmask(),
		Model:   cfg.Advice.Model,
		BaseURL: cfg.Advice.BaseURL,
		Timeout: cfg.Advice.Timeout,
		Logger:  logger,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	stateMetrics := livestate.NewMetrics(reg)
	c.advisorMetrics = advisor.NewMetrics(reg)
	c.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	hub := livestate.NewHub(livestate.HubOptions{
		QueueSize:   cfg.Observers.QueueSize,
		SendTimeout: cfg.Observers.SendTimeout,
		Logger:      logger,
		Metrics:     stateMetrics,
	})
	c.state = livestate.NewService(livestate.NewStore(), hub, logger, stateMetrics)

	c.orchestrator = advisor.New(advisor.Options{
		Ingestion:       c.weather,
		Log:             c.log,
		Generator:       c.generator,
		Recommendations: store.NewRecommendationFile(cfg.Store.RecommendationPath),
		Horizon:         cfg.Store.Horizon,
		Logger:          logger,
		Metrics:         c.advisorMetrics,
	})
	c.chat = advisor.NewChatResponder(c.generator, c.log, cfg.Store.Horizon, logger)
	return c, nil
}

func (c *components) openLog(cfg config.StoreConfig, logger *slog.Logger) (weather.ForecastLog, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := store.OpenSQLiteLog(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open forecast log: %w", err)
		}
		c.closers = append(c.closers, db)
		return db, nil
	case "memory":
		return store.NewMemoryLog(), nil
	default:
		return store.NewCSVLog(cfg.ForecastLogPath, logger), nil
	}
}

// Close drops every observer and releases the forecast log.
func (c *components) Close() error {
	c.state.Close()
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}
