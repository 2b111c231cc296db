package remote

import "errors"

var (
	// ErrDialFailed indicates the websocket handshake did not complete.
	ErrDialFailed = errors.New("websocket dial failed")
	// ErrFetchFailed indicates the REST fetch did not return events.
	ErrFetchFailed = errors.New("event fetch failed")
)
