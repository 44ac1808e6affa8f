package arm

import (
	"errors"
	"time"

	"github.com/banshee-data/armguard/internal/pose"
	"github.com/banshee-data/armguard/internal/safety"
)

// Move outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeTransport    = "transport_error"
	OutcomeStopped      = "stopped"
	OutcomeDisconnected = "disconnected"
)

// MoveRecord is one dispatched move, successful or not. Moves rejected by
// the validator are never dispatched and appear as SafetyEvents instead.
type MoveRecord struct {
	ID       string
	At       time.Time
	From     string // empty when the starting pose was unknown
	Target   pose.Pose
	Outcome  string
	Error    string
	Duration time.Duration
}

// Safety event kinds.
const (
	EventOutOfRange = "out_of_range"
	EventCollision  = "collision"
	EventTransition = "transition"
	EventEmergency  = "emergency"
	EventStop       = "estop"
)

// SafetyEvent is a rejection, an emergency condition or an emergency stop.
type SafetyEvent struct {
	ID     string
	At     time.Time
	Kind   string
	Pose   string
	Detail string
}

// Recorder journals controller activity. Recording failures are logged and
// never fail the operation.
type Recorder interface {
	RecordMove(MoveRecord) error
	RecordSafetyEvent(SafetyEvent) error
}

// EventKind classifies a validation or emergency error.
func EventKind(err error) string {
	var (
		rangeErr      *safety.OutOfRangeError
		collisionErr  *safety.CollisionZoneError
		transitionErr *safety.TransitionDeltaError
		emergencyErr  *safety.EmergencyConditionError
	)
	switch {
	case errors.As(err, &rangeErr):
		return EventOutOfRange
	case errors.As(err, &collisionErr):
		return EventCollision
	case errors.As(err, &transitionErr):
		return EventTransition
	case errors.As(err, &emergencyErr):
		return EventEmergency
	default:
		return ""
	}
}
