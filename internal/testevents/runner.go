package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/analyzemyteam/defsync/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete timeline simulation.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting defsync timeline simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("plays", config.NumPlays),
		logger.Int64("playGapMS", config.PlayGapMS),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Script the plays
	plays, err := generatePlays(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("play generation failed: %w", err)
	}

	// Step 3: Walk the timeline submitting plays
	if err := submitPlays(ctx, config, plays, stats); err != nil {
		return fmt.Errorf("play submission failed: %w", err)
	}

	// Step 4: Give the sync loop time to drain anything queued
	logger.Get().Info(ctx, "waiting for the engine to settle")
	time.Sleep(ProcessingDelay)

	// Step 5: Retrieve the marker chart
	markers, err := retrieveMarkers(ctx, config, plays, stats)
	if err != nil {
		return fmt.Errorf("marker retrieval failed: %w", err)
	}

	// Step 6: Probe nearest-marker lookups concurrently
	if err := probeNearestMarkers(ctx, config, plays, stats); err != nil {
		return fmt.Errorf("nearest probing failed: %w", err)
	}

	// Step 7: Fetch engine statistics
	engineStats, err := getEngineStats(ctx, config)
	if err != nil {
		logger.Get().Warn(ctx, "failed to fetch engine stats", logger.Error(err))
	}

	// Step 8: Verify results
	if err := verifyResults(ctx, config, plays, markers, engineStats, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 9: Save the play script to file
	if err := savePlaysToFile(ctx, config, plays); err != nil {
		logger.Get().Warn(ctx, "failed to save plays to file", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// savePlaysToFile saves the generated play script to a JSON file.
func savePlaysToFile(ctx context.Context, config *Config, plays []Play) error {
	if len(plays) == 0 {
		return fmt.Errorf("no plays to save")
	}

	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "play_script_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(plays); err != nil {
		return fmt.Errorf("failed to write plays: %w", err)
	}

	logger.Get().Info(ctx, "play script saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final run statistics.
func displayFinalStats(stats *Stats) {
	var successRate, playsPerSecond float64

	if stats.PlaysSubmitted > 0 {
		successRate = float64(stats.PlaysSuccessful) / float64(stats.PlaysSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		playsPerSecond = float64(stats.PlaysSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("playsGenerated", stats.PlaysGenerated),
		logger.Int("playsSubmitted", stats.PlaysSubmitted),
		logger.Int("playsSuccessful", stats.PlaysSuccessful),
		logger.Int("playsFailed", stats.PlaysFailed),
		logger.Int("overridesSubmitted", stats.OverridesSubmitted),
		logger.Int("markersRetrieved", stats.MarkersRetrieved),
		logger.Int("nearestHits", stats.NearestHits),
		logger.Int("nearestMisses", stats.NearestMisses),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("playsPerSecond", playsPerSecond))
}
