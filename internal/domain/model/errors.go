package model

import (
	"errors"
)

// Sentinel kinds for model validation errors.
var (
	ErrNilEvent          = errors.New("nil event")
	ErrEmptyEventID      = errors.New("empty event id")
	ErrNegativeTimestamp = errors.New("negative video timestamp")
	ErrUnknownKind       = errors.New("unknown event kind")
	ErrPayloadMismatch   = errors.New("payload does not match kind")
	ErrUnknownFormation  = errors.New("unknown formation type")
	ErrUnknownCall       = errors.New("unknown triangle call")
)
