// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "time"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath locates the sqlite event store. Empty disables persistence.
	DBPath string `koanf:"db_path"`

	// APIBaseURL is the analysis backend REST root. Empty disables
	// fetching.
	APIBaseURL string `koanf:"api_base_url"`

	// APIKey authenticates REST and websocket calls.
	APIKey string `koanf:"api_key"`

	// WSURL is the analysis backend push endpoint. Empty disables the
	// push stream.
	WSURL string `koanf:"ws_url"`

	// QueueSize bounds the in-memory event queue.
	QueueSize int `koanf:"queue_size"`

	// DrainBatch caps events applied per sync tick.
	DrainBatch int `koanf:"drain_batch"`

	// MaxCachedEvents bounds the event cache before eviction.
	MaxCachedEvents int `koanf:"max_cached_events"`

	// MaxMarkers bounds the marker set before eviction.
	MaxMarkers int `koanf:"max_markers"`

	// DedupeSize sets the size of the idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// RetentionHours bounds how long auto-generated events persist.
	RetentionHours int `koanf:"retention_hours"`

	// SyncIntervalMS is the base sync tick at playback rate 1.0.
	SyncIntervalMS int `koanf:"sync_interval_ms"`

	// FetchWindowMS is the half-width of the backend fetch window.
	FetchWindowMS int `koanf:"fetch_window_ms"`

	// FetchDebounceMS spaces position-driven fetches.
	FetchDebounceMS int `koanf:"fetch_debounce_ms"`

	// InterpolationGapMS bounds two-sided lookup interpolation.
	InterpolationGapMS int `koanf:"interpolation_gap_ms"`

	// NearestGapMS bounds single-sided nearest lookups.
	NearestGapMS int `koanf:"nearest_gap_ms"`

	// HeartbeatIntervalMS spaces push stream heartbeats.
	HeartbeatIntervalMS int `koanf:"heartbeat_interval_ms"`

	// HeartbeatTimeoutMS bounds the wait for a heartbeat ack.
	HeartbeatTimeoutMS int `koanf:"heartbeat_timeout_ms"`

	// ReconnectBackoffMS spaces reconnection attempts.
	ReconnectBackoffMS int `koanf:"reconnect_backoff_ms"`

	// MaxReconnectAttempts bounds reconnection attempts before the
	// client degrades.
	MaxReconnectAttempts int `koanf:"max_reconnect_attempts"`

	// MarkerSweepIntervalMS spaces marker age sweeps.
	MarkerSweepIntervalMS int `koanf:"marker_sweep_interval_ms"`

	// MarkerRetentionMS is how far behind the playhead auto markers
	// survive.
	MarkerRetentionMS int `koanf:"marker_retention_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		DBPath:                "defsync.db",
		QueueSize:             1000,
		DrainBatch:            50,
		MaxCachedEvents:       10_000,
		MaxMarkers:            10_000,
		DedupeSize:            50_000,
		RetentionHours:        24,
		SyncIntervalMS:        100,
		FetchWindowMS:         int(5 * time.Minute / time.Millisecond),
		FetchDebounceMS:       int(30 * time.Second / time.Millisecond),
		InterpolationGapMS:    5000,
		NearestGapMS:          10_000,
		HeartbeatIntervalMS:   int(15 * time.Second / time.Millisecond),
		HeartbeatTimeoutMS:    int(30 * time.Second / time.Millisecond),
		ReconnectBackoffMS:    int(5 * time.Second / time.Millisecond),
		MaxReconnectAttempts:  10,
		MarkerSweepIntervalMS: int(5 * time.Minute / time.Millisecond),
		MarkerRetentionMS:     int(time.Hour / time.Millisecond),
	}
}
