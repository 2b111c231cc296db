package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	return io.ReadAll(resp.Body)
}

// submitPlays walks the play script in timeline order. Each play moves
// the playhead forward, marks the formation, and occasionally files a
// booth override for the call the engine recommended.
func submitPlays(ctx context.Context, config *Config, plays []Play, stats *Stats) error {
	log.Printf("Submitting %d plays...", len(plays))

	client := newHTTPClient(config.Timeout)
	formationsURL := config.BaseURL + "/api/v1/formations"
	overridesURL := config.BaseURL + "/api/v1/calls/override"
	playbackURL := config.BaseURL + "/api/v1/playback"

	var lastReport time.Time
	reportInterval := 1 * time.Second

	for i, play := range plays {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Scrub the player to the snap before marking it.
		if err := postAck(ctx, client, playbackURL, map[string]interface{}{
			"position_ms": play.VideoTimestamp,
		}, StatusOK); err != nil {
			log.Printf("playback update failed at %d: %v", play.VideoTimestamp, err)
		}

		stats.PlaysSubmitted++
		if err := postStatus(ctx, client, formationsURL, map[string]interface{}{
			"video_timestamp": play.VideoTimestamp,
			"formation_type":  play.FormationType,
			"notes":           play.Notes,
		}, StatusCreated); err != nil {
			stats.PlaysFailed++
			if config.Verbose {
				log.Printf("formation submit failed at %d: %v", play.VideoTimestamp, err)
			}
			continue
		}
		stats.PlaysSuccessful++

		if play.OverrideCall != "" {
			stats.OverridesSubmitted++
			if err := postStatus(ctx, client, overridesURL, map[string]interface{}{
				"video_timestamp": play.VideoTimestamp,
				"call":            play.OverrideCall,
				"reason":          play.OverrideReason,
			}, StatusCreated); err != nil && config.Verbose {
				log.Printf("override submit failed at %d: %v", play.VideoTimestamp, err)
			}
		}

		if time.Since(lastReport) >= reportInterval {
			lastReport = time.Now()
			log.Printf("Submitted: %d/%d (success: %d, failed: %d, overrides: %d)",
				i+1, len(plays), stats.PlaysSuccessful, stats.PlaysFailed, stats.OverridesSubmitted)
		}
	}

	log.Printf(`Play submission completed:
   Successful: %d
   Failed: %d
   Overrides: %d
`, stats.PlaysSuccessful, stats.PlaysFailed, stats.OverridesSubmitted)

	return nil
}

// postStatus posts a JSON body and checks the status code.
func postStatus(ctx context.Context, client *HTTPClient, url string, body interface{}, want int) error {
	resp, err := client.Post(ctx, url, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	respBody, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// postAck posts a JSON body and checks both the status code and the ack body.
func postAck(ctx context.Context, client *HTTPClient, url string, body interface{}, want int) error {
	resp, err := client.Post(ctx, url, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	respBody, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	var ack AckResponse
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return fmt.Errorf("failed to parse ack: %w", err)
	}
	return nil
}
