package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned when a room id is not registered.
	ErrRoomNotFound = errors.New("room not found")
	// ErrTopicClosed is returned by Recv once a closed topic has been drained.
	ErrTopicClosed = errors.New("topic closed")
	// ErrReceiverClosed is returned by Recv on a receiver that has been detached.
	ErrReceiverClosed = errors.New("receiver closed")
	// ErrLagged matches any *LaggedError via errors.Is.
	ErrLagged = errors.New("receiver lagged")
)

// LaggedError reports that a receiver fell behind the topic's retention window
// and Skipped messages were dropped for it.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged: skipped %d messages", e.Skipped)
}

// Is reports whether target is ErrLagged.
func (e *LaggedError) Is(target error) bool {
	return target == ErrLagged
}
