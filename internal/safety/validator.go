// Package safety gates arm poses and transitions before they reach the
// actuator link. A Validator checks joint ranges, collision zones and
// per-step joint deltas, and keeps counts of what it rejected.
package safety

import (
	"fmt"
	"sync"

	"github.com/banshee-data/armguard/internal/monitoring"
	"github.com/banshee-data/armguard/internal/pose"
)

// Stats counts rejected poses since construction or the last reset.
type Stats struct {
	CollisionCount       int `json:"collision_count"`
	SafetyViolationCount int `json:"safety_violation_count"`
}

// Validator owns the safety configuration and the rejection counters.
// It is safe for concurrent use.
type Validator struct {
	cfg Config

	mu    sync.Mutex
	stats Stats
}

// NewValidator validates cfg and returns a validator using it.
func NewValidator(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	zones := make([]CollisionZone, len(cfg.Zones))
	copy(zones, cfg.Zones)
	cfg.Zones = zones
	return &Validator{cfg: cfg}, nil
}

// NewDefaultValidator returns a validator with DefaultConfig.
func NewDefaultValidator() *Validator {
	v, err := NewValidator(DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("safety: default config invalid: %v", err))
	}
	return v
}

// Config returns a copy of the validator configuration.
func (v *Validator) Config() Config {
	cfg := v.cfg
	cfg.Zones = make([]CollisionZone, len(v.cfg.Zones))
	copy(cfg.Zones, v.cfg.Zones)
	return cfg
}

// CheckPose runs the range checks in joint order and then the collision-zone
// check. The first failure is counted, logged and returned; later checks are
// skipped. A nil return leaves the counters untouched.
func (v *Validator) CheckPose(p pose.Pose) error {
	for _, j := range pose.Joints {
		r := v.cfg.Limits.For(j)
		if val := p.Joint(j); !r.Contains(val) {
			err := &OutOfRangeError{Pose: p.Name(), Joint: j, Value: val, Range: r}
			v.mu.Lock()
			v.stats.SafetyViolationCount++
			v.mu.Unlock()
			monitoring.Logf("%v", err)
			return err
		}
	}

	if zone, hit := v.CollisionZoneFor(p); hit {
		err := &CollisionZoneError{Pose: p.Name(), Zone: zone}
		v.mu.Lock()
		v.stats.CollisionCount++
		v.mu.Unlock()
		monitoring.Logf("%v", err)
		return err
	}

	return nil
}

// IsPoseSafe reports whether CheckPose accepts p.
func (v *Validator) IsPoseSafe(p pose.Pose) bool {
	return v.CheckPose(p) == nil
}

// CollisionZoneFor returns the first configured zone containing p.
func (v *Validator) CollisionZoneFor(p pose.Pose) (CollisionZone, bool) {
	for _, z := range v.cfg.Zones {
		if z.Contains(p) {
			return z, true
		}
	}
	return CollisionZone{}, false
}

// IsInCollisionZone reports whether p lies in any configured zone. It does
// not touch the counters.
func (v *Validator) IsInCollisionZone(p pose.Pose) bool {
	_, hit := v.CollisionZoneFor(p)
	return hit
}

// Deltas holds the absolute per-joint change between two poses, indexed by
// pose.Joint.
type Deltas [5]int

// Of returns the delta for joint j.
func (d Deltas) Of(j pose.Joint) int { return d[j] }

// TransitionDeltas computes the absolute change of every joint.
func TransitionDeltas(from, to pose.Pose) Deltas {
	var d Deltas
	for _, j := range pose.Joints {
		delta := to.Joint(j) - from.Joint(j)
		if delta < 0 {
			delta = -delta
		}
		d[j] = delta
	}
	return d
}

// limitedJoints are checked against MaxJointChange, in order. The gripper is
// exempt: open/close is expected to be a large single step.
var limitedJoints = []pose.Joint{pose.Base, pose.Shoulder, pose.Elbow, pose.Wrist}

// CheckTransition rejects a move in which any limited joint changes by more
// than MaxJointChange. Both poses are assumed to have passed CheckPose.
// The counters are not modified.
func (v *Validator) CheckTransition(from, to pose.Pose) error {
	deltas := TransitionDeltas(from, to)
	for _, j := range limitedJoints {
		if d := deltas.Of(j); d > v.cfg.MaxJointChange {
			err := &TransitionDeltaError{
				From:  from.Name(),
				To:    to.Name(),
				Joint: j,
				Delta: d,
				Limit: v.cfg.MaxJointChange,
			}
			monitoring.Logf("%v", err)
			return err
		}
	}
	return nil
}

// IsTransitionSafe reports whether CheckTransition accepts the move.
func (v *Validator) IsTransitionSafe(from, to pose.Pose) bool {
	return v.CheckTransition(from, to) == nil
}

// CalculateReach returns the approximate end-effector distance for p using
// the configured link lengths. It is informational only.
func (v *Validator) CalculateReach(p pose.Pose) float64 {
	return Reach(p, v.cfg.Links)
}

// Stats returns a snapshot of the counters.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// ResetStats zeroes both counters.
func (v *Validator) ResetStats() {
	v.mu.Lock()
	v.stats = Stats{}
	v.mu.Unlock()
}
