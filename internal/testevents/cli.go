package testevents

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/analyzemyteam/defsync/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "sim_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`DefSync Timeline Simulation Tool
================================

Scripts a game's worth of defensive plays against a running DefSync
instance, walks the video timeline marking formations and overrides,
then verifies the marker chart and engine statistics.

Usage:
  go run cmd/test-events/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -plays int
        Number of plays to script on the timeline (default 200)
  -gap int
        Video-time spacing between plays in ms (default 20000)
  -workers int
        Number of concurrent workers for marker lookups (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for the play script (default: play_script_TIMESTAMP.json)
  -log string
        Log file for run output (default: sim_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run cmd/test-events/main.go

  # Simulate a long game against a remote instance
  go run cmd/test-events/main.go -plays 1000 -url http://localhost:8080

  # Simulate with verbose output
  go run cmd/test-events/main.go -verbose -plays 100
`)
}
