package testevents

import "time"

// Config holds configuration for the simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumPlays   int           // Number of plays to script on the timeline
	PlayGapMS  int64         // Video-time spacing between plays in ms
	Workers    int           // Number of concurrent workers for lookups
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for the generated play script
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Play is one scripted defensive snap on the video timeline.
type Play struct {
	VideoTimestamp int64  `json:"video_timestamp"`
	FormationType  string `json:"formation_type"`
	Notes          string `json:"notes,omitempty"`
	OverrideCall   string `json:"override_call,omitempty"`
	OverrideReason string `json:"override_reason,omitempty"`
}

// Marker mirrors the timeline marker shape returned by the API.
type Marker struct {
	ID             string  `json:"marker_id"`
	SourceEventID  string  `json:"source_event_id"`
	Kind           string  `json:"kind"`
	VideoTimestamp int64   `json:"video_timestamp"`
	Label          string  `json:"label"`
	Color          string  `json:"color"`
	HeightScale    float64 `json:"height_scale"`
	Priority       int     `json:"priority"`
	UserCreated    bool    `json:"user_created"`
}

// EngineStats mirrors the statistics snapshot returned by the API.
type EngineStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDropped   int64 `json:"events_dropped"`
	MarkersCreated  int64 `json:"markers_created"`
	CacheHits       int64 `json:"cache_hits"`
	CacheMisses     int64 `json:"cache_misses"`
	SyncOperations  int64 `json:"sync_operations"`
	NetworkRequests int64 `json:"network_requests"`
}

// AckResponse represents an acknowledgement body from the service.
type AckResponse struct {
	Status string `json:"status"`
}

// Stats holds run statistics.
type Stats struct {
	PlaysGenerated     int
	PlaysSubmitted     int
	PlaysSuccessful    int
	PlaysFailed        int
	OverridesSubmitted int
	MarkersRetrieved   int
	NearestHits        int
	NearestMisses      int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
