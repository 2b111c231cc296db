package repository

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrNotFound     = errors.New("event not found")
	ErrNoEvent      = errors.New("no event near position")
	ErrInvalidRange = errors.New("invalid range")
	ErrNotAlert     = errors.New("event is not an alert")
)
