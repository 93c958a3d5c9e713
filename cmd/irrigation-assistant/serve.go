package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/irrigation-assistant/internal/api/http"
	"github.com/i474232898/irrigation-assistant/internal/mqttbridge"
	"github.com/i474232898/irrigation-assistant/internal/scheduler"
	"github.com/i474232898/irrigation-assistant/internal/weather"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, push channel and periodic ingestion",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("error closing components", "error", err)
		}
	}()

	// Scheduler that periodically fetches and stores forecasts.
	sched := scheduler.New(scheduler.Options{
		Locations: []weather.Location{cfg.DefaultLocation()},
		Interval:  cfg.Weather.FetchInterval,
		Horizon:   cfg.Store.Horizon,
		Ingestion: c.weather,
		Sink:      c.state,
		Recorder:  c.advisorMetrics,
		Logger:    logger,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if cfg.MQTTEnabled() {
		bridge := mqttbridge.New(mqttbridge.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			SensorTopic: cfg.MQTT.SensorTopic,
			StateTopic:  cfg.MQTT.StateTopic,
			Logger:      logger,
		}, c.state)
		if err := bridge.Start(); err != nil {
			// The client keeps retrying in the background.
			logger.Warn("MQTT bridge not connected yet", "broker", cfg.MQTT.Broker, "error", err)
		}
		defer bridge.Stop()
	}

	app := httpapi.NewApp(httpapi.Deps{
		Advisor:         c.orchestrator,
		State:           c.state,
		Chat:            c.chat,
		DefaultLocation: cfg.DefaultLocation(),
		Version:         version,
		Metrics:         c.metrics,
		Logger:          logger,
	}, cfg.Server.CORSOrigins)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr(), "provider", cfg.Weather.Provider, "store", cfg.Store.Backend)
		listenErr <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	return nil
}
