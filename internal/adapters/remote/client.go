// Package remote talks to the analysis backend. It pulls historical
// events over REST and receives live detections over a websocket push
// stream with heartbeat supervision and bounded reconnection.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/logger"
	"github.com/analyzemyteam/defsync/pkg/metrics"
)

const (
	defaultFetchTimeout      = 10 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
	defaultHeartbeatTimeout  = 30 * time.Second
	defaultReconnectDelay    = 5 * time.Second
	defaultMaxReconnects     = 10
)

// Push stream message types.
const (
	pushFormation = "formation_detected"
	pushCall      = "triangle_call"
	pushAlert     = "coaching_alert"
	pushMEL       = "mel_update"
	pushHeartbeat = "heartbeat_response"
)

// Conn is the subset of a websocket connection the client needs.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc establishes a websocket connection.
type DialFunc func(ctx context.Context, urlStr string, header http.Header) (Conn, error)

// Handler receives validated events from the push stream.
type Handler func(e *model.Event)

// StatusFunc is notified on every connection state change.
type StatusFunc func(s model.ConnectionStatus)

// Client is the backend adapter. Construct with NewClient, then call
// Connect to start the push stream.
type Client struct {
	baseURL string
	apiKey  string
	wsURL   string

	httpClient *http.Client
	dial       DialFunc
	handler    Handler
	onStatus   StatusFunc
	tracker    *stats.Tracker
	logger     logger.Logger

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	reconnectDelay    time.Duration
	maxReconnects     int
	fetchTimeout      time.Duration

	mu          sync.Mutex
	state       model.ConnectionState
	reconnects  int
	lastAck     time.Time
	fetchCancel context.CancelFunc

	reconnectCh chan struct{}
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// pushEnvelope is the wire frame of the push stream.
type pushEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewClient builds a client for the given REST base URL and websocket
// endpoint. The handler receives every valid pushed event.
func NewClient(baseURL, apiKey, wsURL string, handler Handler, opts ...Option) *Client {
	c := &Client{
		baseURL:           baseURL,
		apiKey:            apiKey,
		wsURL:             wsURL,
		handler:           handler,
		httpClient:        &http.Client{Timeout: defaultFetchTimeout},
		heartbeatInterval: defaultHeartbeatInterval,
		heartbeatTimeout:  defaultHeartbeatTimeout,
		reconnectDelay:    defaultReconnectDelay,
		maxReconnects:     defaultMaxReconnects,
		fetchTimeout:      defaultFetchTimeout,
		state:             model.StateDisconnected,
		reconnectCh:       make(chan struct{}, 1),
		stopChan:          make(chan struct{}),
		logger:            logger.Get().Named("remote"),
	}
	c.dial = defaultDial

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultDial(ctx context.Context, urlStr string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, urlStr, header)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: http %d: %v", ErrDialFailed, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}
	return conn, nil
}

// Connect starts the push stream loop. It returns immediately; the
// connection is established in the background.
func (c *Client) Connect(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Close stops the push stream and cancels any in-flight fetch.
func (c *Client) Close() error {
	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	c.mu.Lock()
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.setState(model.StateDisconnected)
	return nil
}

// Reconnect resets the attempt budget and wakes a degraded client.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.reconnects = 0
	c.mu.Unlock()

	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the connection state.
func (c *Client) Status() model.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.ConnectionStatus{
		State:             c.state,
		ReconnectAttempts: c.reconnects,
		LastHeartbeatAck:  c.lastAck.UnixMilli(),
	}
}

// FetchRange retrieves events in [from, to] milliseconds from the REST
// endpoint. Starting a new fetch cancels the previous in-flight one.
// Records that fail validation are dropped.
func (c *Client) FetchRange(ctx context.Context, from, to int64) ([]*model.Event, error) {
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)

	c.mu.Lock()
	if c.fetchCancel != nil {
		c.fetchCancel()
	}
	c.fetchCancel = cancel
	c.mu.Unlock()
	defer cancel()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	u.Path, err = url.JoinPath(u.Path, "events")
	if err != nil {
		return nil, fmt.Errorf("join url path: %w", err)
	}
	q := u.Query()
	q.Set("from", fmt.Sprintf("%d", from))
	q.Set("to", fmt.Sprintf("%d", to))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	metrics.RecordFetch()
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordFetchError()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordFetchError()
		return nil, fmt.Errorf("%w: http %d", ErrFetchFailed, resp.StatusCode)
	}

	var raw []*model.Event
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		metrics.RecordFetchError()
		return nil, fmt.Errorf("%w: decode body: %v", ErrFetchFailed, err)
	}

	elapsed := time.Since(start)
	metrics.RecordFetchLatency(float64(elapsed.Milliseconds()))
	if c.tracker != nil {
		c.tracker.NetworkRequest(elapsed)
	}

	events := make([]*model.Event, 0, len(raw))
	for _, e := range raw {
		if err := e.Validate(); err != nil {
			c.logger.Warn(ctx, "dropping invalid fetched event",
				logger.String("event_id", eventID(e)),
				logger.Error(err),
			)
			metrics.RecordEventDropped("fetch_invalid")
			continue
		}
		events = append(events, e)
	}

	c.logger.Debug(ctx, "fetched events",
		logger.Int64("from", from),
		logger.Int64("to", to),
		logger.Int("count", len(events)),
	)
	return events, nil
}

// run owns the connect / serve / reconnect cycle.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		if c.stopped(ctx) {
			return
		}

		c.setState(model.StateConnecting)

		header := http.Header{}
		if c.apiKey != "" {
			header.Set("Authorization", "Bearer "+c.apiKey)
		}
		conn, err := c.dial(ctx, c.wsURL, header)
		if err != nil {
			if !c.backoff(ctx, err) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.reconnects = 0
		c.lastAck = time.Now()
		c.mu.Unlock()
		c.setState(model.StateConnected)
		c.logger.Info(ctx, "push stream connected")

		c.serve(ctx, conn)
		conn.Close()

		if c.stopped(ctx) {
			return
		}
		c.setState(model.StateDisconnected)

		// A dropped connection waits out the same delay as a failed
		// dial before the next attempt.
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-c.reconnectCh:
		case <-time.After(c.reconnectDelay):
		}
	}
}

// backoff handles a failed dial. It returns false when the run loop
// should exit. After the attempt budget is spent the client parks in
// the degraded state until Reconnect is called.
func (c *Client) backoff(ctx context.Context, dialErr error) bool {
	c.mu.Lock()
	c.reconnects++
	attempts := c.reconnects
	c.mu.Unlock()
	metrics.RecordReconnectAttempt()

	c.logger.Warn(ctx, "push stream dial failed",
		logger.Int("attempt", attempts),
		logger.Error(dialErr),
	)

	if attempts >= c.maxReconnects {
		c.setState(model.StateDegraded)
		c.logger.Error(ctx, "push stream degraded, awaiting manual reconnect",
			logger.Int("attempts", attempts),
		)
		select {
		case <-ctx.Done():
			return false
		case <-c.stopChan:
			return false
		case <-c.reconnectCh:
			return true
		}
	}

	select {
	case <-ctx.Done():
		return false
	case <-c.stopChan:
		return false
	case <-time.After(c.reconnectDelay):
		return true
	}
}

// serve pumps one connection until it fails, the heartbeat ack times
// out, or the client stops.
func (c *Client) serve(ctx context.Context, conn Conn) {
	done := make(chan struct{})
	defer close(done)

	msgs := make(chan []byte, 16)
	errs := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case errs <- err:
				case <-done:
				}
				return
			}
			select {
			case msgs <- data:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case err := <-errs:
			c.logger.Warn(ctx, "push stream read failed", logger.Error(err))
			return
		case data := <-msgs:
			c.handleMessage(ctx, data)
		case <-ticker.C:
			c.mu.Lock()
			stale := time.Since(c.lastAck) > c.heartbeatTimeout
			c.mu.Unlock()
			if stale {
				metrics.RecordHeartbeatTimeout()
				c.logger.Warn(ctx, "heartbeat ack timed out")
				return
			}
			frame, _ := json.Marshal(pushEnvelope{Event: "heartbeat"})
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn(ctx, "heartbeat send failed", logger.Error(err))
				return
			}
		}
	}
}

// handleMessage decodes one push frame and routes it.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var env pushEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.RecordPushMalformed()
		c.logger.Warn(ctx, "malformed push frame", logger.Error(err))
		return
	}

	switch env.Event {
	case pushHeartbeat:
		c.mu.Lock()
		c.lastAck = time.Now()
		c.mu.Unlock()

	case pushFormation, pushCall, pushAlert, pushMEL:
		var e model.Event
		if err := json.Unmarshal(env.Data, &e); err != nil {
			metrics.RecordPushMalformed()
			c.logger.Warn(ctx, "malformed push payload",
				logger.String("type", env.Event),
				logger.Error(err),
			)
			return
		}
		if err := e.Validate(); err != nil {
			metrics.RecordPushMalformed()
			c.logger.Warn(ctx, "invalid pushed event",
				logger.String("type", env.Event),
				logger.String("event_id", e.ID),
				logger.Error(err),
			)
			return
		}
		metrics.RecordPushReceived(env.Event)
		if c.handler != nil {
			c.handler(&e)
		}

	default:
		metrics.RecordPushMalformed()
		c.logger.Warn(ctx, "unknown push type", logger.String("type", env.Event))
	}
}

func (c *Client) setState(s model.ConnectionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	status := model.ConnectionStatus{
		State:             c.state,
		ReconnectAttempts: c.reconnects,
		LastHeartbeatAck:  c.lastAck.UnixMilli(),
	}
	c.mu.Unlock()

	metrics.UpdateConnectionState(int(s))
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

func (c *Client) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

func eventID(e *model.Event) string {
	if e == nil {
		return ""
	}
	return e.ID
}
