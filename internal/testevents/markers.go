package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// retrieveMarkers fetches every timeline marker the run produced.
func retrieveMarkers(ctx context.Context, config *Config, plays []Play, stats *Stats) ([]Marker, error) {
	if len(plays) == 0 {
		return nil, fmt.Errorf("no plays to look up")
	}

	to := plays[len(plays)-1].VideoTimestamp + NearestToleranceMS
	log.Printf("Retrieving markers for range [0, %d]...", to)

	client := newHTTPClient(config.Timeout)
	url := fmt.Sprintf("%s/api/v1/markers?from=0&to=%d", config.BaseURL, to)

	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var markers []Marker
	if err := json.Unmarshal(body, &markers); err != nil {
		return nil, fmt.Errorf("failed to parse markers: %w", err)
	}

	stats.MarkersRetrieved = len(markers)
	log.Printf("Retrieved %d markers", len(markers))
	return markers, nil
}

// probeNearestMarkers runs concurrent nearest-marker lookups at each
// snap position and counts hits within the timeline tolerance.
func probeNearestMarkers(ctx context.Context, config *Config, plays []Play, stats *Stats) error {
	log.Printf("Probing nearest markers for %d plays with %d workers...", len(plays), config.Workers)

	client := newHTTPClient(config.Timeout)

	var (
		hits   int64
		misses int64
	)

	var lastReport time.Time
	reportInterval := 1 * time.Second

	playChan := make(chan Play, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for play := range playChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				marker, err := probeSingleNearest(ctx, client, config.BaseURL, play.VideoTimestamp)
				if err != nil {
					atomic.AddInt64(&misses, 1)
					if config.Verbose {
						log.Printf("nearest lookup failed at %d: %v", play.VideoTimestamp, err)
					}
				} else if abs64(marker.VideoTimestamp-play.VideoTimestamp) <= NearestToleranceMS {
					atomic.AddInt64(&hits, 1)
				} else {
					atomic.AddInt64(&misses, 1)
				}

				if time.Since(lastReport) >= reportInterval {
					lastReport = time.Now()
					log.Printf("Nearest probes: %d/%d done",
						atomic.LoadInt64(&hits)+atomic.LoadInt64(&misses), len(plays))
				}
			}
		}()
	}

	go func() {
		defer close(playChan)
		for _, play := range plays {
			select {
			case <-ctx.Done():
				return
			case playChan <- play:
			}
		}
	}()

	wg.Wait()

	stats.NearestHits = int(atomic.LoadInt64(&hits))
	stats.NearestMisses = int(atomic.LoadInt64(&misses))

	log.Printf(`Nearest probing completed:
   Hits: %d
   Misses: %d
`, stats.NearestHits, stats.NearestMisses)

	return nil
}

// probeSingleNearest looks up the nearest marker to one position.
func probeSingleNearest(ctx context.Context, client *HTTPClient, baseURL string, ts int64) (Marker, error) {
	url := fmt.Sprintf("%s/api/v1/markers/nearest?ts=%d", baseURL, ts)

	resp, err := client.Get(ctx, url)
	if err != nil {
		return Marker{}, fmt.Errorf("request failed: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return Marker{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return Marker{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var marker Marker
	if err := json.Unmarshal(body, &marker); err != nil {
		return Marker{}, fmt.Errorf("failed to parse marker: %w", err)
	}
	return marker, nil
}

// getEngineStats fetches the engine statistics snapshot.
func getEngineStats(ctx context.Context, config *Config) (*EngineStats, error) {
	log.Println("Fetching engine statistics...")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/api/v1/stats"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var engineStats EngineStats
	if err := json.Unmarshal(body, &engineStats); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	return &engineStats, nil
}

// abs64 returns the absolute value of an int64.
func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
