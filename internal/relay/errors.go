package relay

import "errors"

var (
	// ErrTransport wraps read and write failures on the client connection.
	ErrTransport = errors.New("transport failure")
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("relay already started")
)
