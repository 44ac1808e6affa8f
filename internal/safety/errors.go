package safety

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/banshee-data/armguard/internal/pose"
)

// ErrUnsafe matches every validation refusal via errors.Is.
var ErrUnsafe = errors.New("unsafe")

// OutOfRangeError reports a joint outside its configured limits.
type OutOfRangeError struct {
	Pose  string
	Joint pose.Joint
	Value int
	Range Range
}

func (e *OutOfRangeError) Error() string {
	kind := "angle"
	if e.Joint == pose.Gripper {
		kind = "position"
	}
	return fmt.Sprintf("safety violation: %s %s %d out of range %s", e.Joint.Title(), kind, e.Value, e.Range)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrUnsafe }

// CollisionZoneError reports a pose inside a configured collision zone.
type CollisionZoneError struct {
	Pose string
	Zone CollisionZone
}

func (e *CollisionZoneError) Error() string {
	return fmt.Sprintf("safety violation: pose %s is in collision zone %s", e.Pose, e.Zone)
}

func (e *CollisionZoneError) Is(target error) bool { return target == ErrUnsafe }

// TransitionDeltaError reports a single-step joint change above the limit.
type TransitionDeltaError struct {
	From  string
	To    string
	Joint pose.Joint
	Delta int
	Limit int
}

func (e *TransitionDeltaError) Error() string {
	return fmt.Sprintf("unsafe transition: %s change of %d° exceeds max %d°", e.Joint.Title(), e.Delta, e.Limit)
}

func (e *TransitionDeltaError) Is(target error) bool { return target == ErrUnsafe }

// EmergencyKind names the sensor condition that tripped.
type EmergencyKind string

const (
	EmergencyObstacle    EmergencyKind = "obstacle"
	EmergencyForce       EmergencyKind = "force"
	EmergencyTemperature EmergencyKind = "temperature"
)

// EmergencyConditionError reports a sensor reading past its threshold.
type EmergencyConditionError struct {
	Kind      EmergencyKind
	Value     float64
	Threshold float64
}

func (e *EmergencyConditionError) Error() string {
	v := strconv.FormatFloat(e.Value, 'g', -1, 64)
	switch e.Kind {
	case EmergencyObstacle:
		return fmt.Sprintf("Obstacle detected at %scm", v)
	case EmergencyForce:
		return fmt.Sprintf("Excessive force detected: %sN", v)
	case EmergencyTemperature:
		return fmt.Sprintf("Motor overheating: %s°C", v)
	}
	return fmt.Sprintf("emergency condition %s: %s (threshold %g)", e.Kind, v, e.Threshold)
}

func (e *EmergencyConditionError) Is(target error) bool { return target == ErrUnsafe }
