package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/i474232898/irrigation-assistant/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "irrigation-assistant",
	Short: "Irrigation assistant backend",
	Long: `irrigation-assistant ingests weather forecasts into an append-only log,
turns the upcoming window into irrigation advice and serves the live
device state to connected dashboards.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the JSON logger as the default.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
