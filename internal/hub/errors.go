package hub

import "errors"

var (
	ErrAlreadyRunning = errors.New("hub already running")
	ErrNotRunning     = errors.New("hub not running")
	ErrQueueFull      = errors.New("activity queue full")
	ErrNilSubscriber  = errors.New("subscriber is nil")
	ErrNotRegistered  = errors.New("connection not registered")
)
