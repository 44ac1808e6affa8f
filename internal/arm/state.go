package arm

import "fmt"

// State is the controller's connection state.
type State int

const (
	Disconnected State = iota
	ConnectedNoPose
	ConnectedAtPose
)

var stateNames = [...]string{"disconnected", "connected_no_pose", "connected_at_pose"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Connected reports whether s has an open link.
func (s State) Connected() bool {
	return s == ConnectedNoPose || s == ConnectedAtPose
}

// MarshalText encodes the state by name for JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
