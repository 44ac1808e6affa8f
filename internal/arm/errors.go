package arm

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by operations that need an open link.
var ErrNotConnected = errors.New("not connected to robot arm")

// ErrStopped is the cause of a TransportError for a move that an emergency
// stop interrupted.
var ErrStopped = errors.New("interrupted by emergency stop")

// ErrDisconnected is the cause of a TransportError for a move cut short by
// Disconnect.
var ErrDisconnected = errors.New("interrupted by disconnect")

// TransportError wraps a failure of the hardware link. The controller's
// recorded pose is unchanged when one is returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("arm transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
