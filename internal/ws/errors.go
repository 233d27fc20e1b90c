package ws

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrRateLimited      = errors.New("rate limit exceeded")
)
