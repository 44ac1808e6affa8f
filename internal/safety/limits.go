package safety

import (
	"errors"
	"fmt"

	"github.com/banshee-data/armguard/internal/pose"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v int) bool {
	return r.Min <= v && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// JointLimits holds the legal range for every joint.
type JointLimits struct {
	Base     Range `json:"base"`
	Shoulder Range `json:"shoulder"`
	Elbow    Range `json:"elbow"`
	Wrist    Range `json:"wrist"`
	Gripper  Range `json:"gripper"`
}

// For returns the range configured for joint j.
func (l JointLimits) For(j pose.Joint) Range {
	switch j {
	case pose.Base:
		return l.Base
	case pose.Shoulder:
		return l.Shoulder
	case pose.Elbow:
		return l.Elbow
	case pose.Wrist:
		return l.Wrist
	case pose.Gripper:
		return l.Gripper
	}
	panic(fmt.Sprintf("safety: unknown joint %d", int(j)))
}

// Validate checks that every range has Min <= Max.
func (l JointLimits) Validate() error {
	for _, j := range pose.Joints {
		r := l.For(j)
		if r.Min > r.Max {
			return fmt.Errorf("%s limits invalid: min %d > max %d", j, r.Min, r.Max)
		}
	}
	return nil
}

// CollisionZone is a rectangle in (shoulder, elbow) space known to cause
// self-collision.
type CollisionZone struct {
	Name        string `json:"name,omitempty"`
	ShoulderMin int    `json:"shoulder_min"`
	ShoulderMax int    `json:"shoulder_max"`
	ElbowMin    int    `json:"elbow_min"`
	ElbowMax    int    `json:"elbow_max"`
}

// Contains reports whether both the shoulder and elbow angles of p fall in the zone.
func (z CollisionZone) Contains(p pose.Pose) bool {
	return z.ShoulderMin <= p.Shoulder() && p.Shoulder() <= z.ShoulderMax &&
		z.ElbowMin <= p.Elbow() && p.Elbow() <= z.ElbowMax
}

func (z CollisionZone) String() string {
	label := z.Name
	if label == "" {
		label = "zone"
	}
	return fmt.Sprintf("%s (shoulder [%d, %d], elbow [%d, %d])",
		label, z.ShoulderMin, z.ShoulderMax, z.ElbowMin, z.ElbowMax)
}

// Links are the link lengths of the simplified planar arm, in arbitrary units.
type Links struct {
	Shoulder float64 `json:"shoulder"`
	Elbow    float64 `json:"elbow"`
	Wrist    float64 `json:"wrist"`
}

// Config is the static safety configuration. It is validated once when a
// Validator is built and never changes afterwards.
type Config struct {
	Limits         JointLimits     `json:"limits"`
	MaxJointChange int             `json:"max_joint_change"`
	Zones          []CollisionZone `json:"collision_zones"`
	Links          Links           `json:"links"`
}

// Default limits for the folding arm.
const (
	DefaultMaxJointChange = 90

	DefaultShoulderLength = 10.0
	DefaultElbowLength    = 8.0
	DefaultWristLength    = 5.0
)

// DefaultConfig returns the stock limits of the folding arm.
func DefaultConfig() Config {
	return Config{
		Limits: JointLimits{
			Base:     Range{Min: 0, Max: 180},
			Shoulder: Range{Min: 15, Max: 165},
			Elbow:    Range{Min: 0, Max: 180},
			Wrist:    Range{Min: 0, Max: 180},
			Gripper:  Range{Min: 10, Max: 90},
		},
		MaxJointChange: DefaultMaxJointChange,
		Zones: []CollisionZone{
			{Name: "arm hits base", ShoulderMin: 15, ShoulderMax: 40, ElbowMin: 0, ElbowMax: 30},
		},
		Links: Links{
			Shoulder: DefaultShoulderLength,
			Elbow:    DefaultElbowLength,
			Wrist:    DefaultWristLength,
		},
	}
}

var ErrInvalidConfig = errors.New("invalid safety config")

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MaxJointChange < 0 {
		return fmt.Errorf("%w: max_joint_change must be non-negative, got %d", ErrInvalidConfig, c.MaxJointChange)
	}
	for i, z := range c.Zones {
		if z.ShoulderMin > z.ShoulderMax || z.ElbowMin > z.ElbowMax {
			return fmt.Errorf("%w: collision zone %d has min > max: %s", ErrInvalidConfig, i, z)
		}
	}
	if c.Links.Shoulder < 0 || c.Links.Elbow < 0 || c.Links.Wrist < 0 {
		return fmt.Errorf("%w: link lengths must be non-negative", ErrInvalidConfig)
	}
	return nil
}
