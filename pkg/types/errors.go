package types

import "errors"

var (
	ErrInvalidActivityType = errors.New("activity type must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidStatus       = errors.New("status must be success, failed or pending")
	ErrInvalidActorID      = errors.New("actor id must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole         = errors.New("role must be admin, customer or service")
	ErrDescriptionTooLong  = errors.New("description exceeds 500 characters")
	ErrInvalidTimeframe    = errors.New("timeframe must be one of 24h, 7d, 30d, 90d")
	ErrEmptyPayload        = errors.New("event payload is empty")
)
