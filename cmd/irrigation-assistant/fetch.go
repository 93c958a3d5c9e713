package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one forecast batch and append it to the log",
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().Float64("lat", 0, "latitude (defaults to DEFAULT_LATITUDE)")
	fetchCmd.Flags().Float64("lon", 0, "longitude (defaults to DEFAULT_LONGITUDE)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	loc := cfg.DefaultLocation()
	if cmd.Flags().Changed("lat") {
		loc.Latitude, _ = cmd.Flags().GetFloat64("lat")
	}
	if cmd.Flags().Changed("lon") {
		loc.Longitude, _ = cmd.Flags().GetFloat64("lon")
	}

	if err := c.weather.CheckCredentials(); err != nil {
		return err
	}
	batch, err := c.weather.FetchBatch(cmd.Context(), loc)
	if err != nil {
		return err
	}
	err = c.weather.Append(cmd.Context(), batch)
	c.advisorMetrics.Append(err)
	if err != nil {
		return fmt.Errorf("append to forecast log: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "appended %d records for %s (fetched_at %s)\n",
		batch.Len(), batch.Records[0].LocationName, batch.FetchedAt.Format(time.RFC3339Nano))
	return nil
}
