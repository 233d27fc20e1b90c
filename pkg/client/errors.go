package client

import "errors"

var (
	ErrEmptyToken              = errors.New("credential token is empty")
	ErrConnectInProgress       = errors.New("connect already in progress")
	ErrNotConnected            = errors.New("not connected")
	ErrNotJoined               = errors.New("dashboard room not joined")
	ErrJoinPending             = errors.New("dashboard join awaiting confirmation")
	ErrAlreadyJoined           = errors.New("dashboard room already joined")
	ErrInitialAlreadyRequested = errors.New("initial activities already requested")
	ErrNotAdmin                = errors.New("dashboard room requires admin role")

	// ErrForcedDisconnect marks a deliberate server-side close. Reads failing
	// with it do not trigger the reconnect loop; the caller must reconnect
	// explicitly.
	ErrForcedDisconnect = errors.New("server forced disconnect")
)
