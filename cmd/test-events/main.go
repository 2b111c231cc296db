package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/analyzemyteam/defsync/internal/testevents"
)

// Default configuration constants.
const (
	defaultNumPlays   = 200
	defaultPlayGapMS  = 20000
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numPlays   = flag.Int("plays", defaultNumPlays, "Number of plays to script on the timeline")
		playGap    = flag.Int64("gap", defaultPlayGapMS, "Video-time spacing between plays in ms")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers for marker lookups")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for the play script (default: play_script_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for run output (default: sim_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	if err := testevents.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:    *baseURL,
		NumPlays:   *numPlays,
		PlayGapMS:  *playGap,
		Workers:    *workers,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	if err := testevents.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		return
	}
}
