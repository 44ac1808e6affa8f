// Package pose defines the immutable joint-angle tuple sent to the arm and the
// catalog of named poses and folding sequences.
package pose

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Joint identifies one controllable degree of freedom.
type Joint int

const (
	Base Joint = iota
	Shoulder
	Elbow
	Wrist
	Gripper
)

// Joints lists every joint in the fixed evaluation order.
var Joints = []Joint{Base, Shoulder, Elbow, Wrist, Gripper}

var jointNames = [...]string{"base", "shoulder", "elbow", "wrist", "gripper"}

func (j Joint) String() string {
	if j < 0 || int(j) >= len(jointNames) {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return jointNames[j]
}

// Title returns the capitalised joint name used in diagnostics.
func (j Joint) Title() string {
	s := j.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

var (
	ErrMissingName  = errors.New("pose name is required")
	ErrMissingJoint = errors.New("pose joint value missing")
	ErrNotNumeric   = errors.New("pose joint value is not an integer")
)

// Pose is a named snapshot of all joint targets. Angles are in degrees; the
// gripper is a position where lower values are more open. Poses are values:
// the With* helpers return a modified copy and never touch the receiver.
type Pose struct {
	name     string
	base     int
	shoulder int
	elbow    int
	wrist    int
	gripper  int
}

// New builds a pose. The name is only used for diagnostics but must be set.
func New(name string, base, shoulder, elbow, wrist, gripper int) (Pose, error) {
	if strings.TrimSpace(name) == "" {
		return Pose{}, ErrMissingName
	}
	return Pose{
		name:     name,
		base:     base,
		shoulder: shoulder,
		elbow:    elbow,
		wrist:    wrist,
		gripper:  gripper,
	}, nil
}

// MustNew is New for package-level constants; it panics on error.
func MustNew(name string, base, shoulder, elbow, wrist, gripper int) Pose {
	p, err := New(name, base, shoulder, elbow, wrist, gripper)
	if err != nil {
		panic(err)
	}
	return p
}

// FromMap builds a pose from loosely typed input such as a decoded JSON body.
// Every joint must be present and integral.
func FromMap(name string, values map[string]any) (Pose, error) {
	var joints [5]int
	for i, j := range Joints {
		raw, ok := values[j.String()]
		if !ok || raw == nil {
			return Pose{}, fmt.Errorf("%w: %s", ErrMissingJoint, j)
		}
		v, err := toInt(raw)
		if err != nil {
			return Pose{}, fmt.Errorf("%s: %w", j, err)
		}
		joints[i] = v
	}
	return New(name, joints[0], joints[1], joints[2], joints[3], joints[4])
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, v.String())
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, raw)
	}
}

func (p Pose) Name() string  { return p.name }
func (p Pose) Base() int     { return p.base }
func (p Pose) Shoulder() int { return p.shoulder }
func (p Pose) Elbow() int    { return p.elbow }
func (p Pose) Wrist() int    { return p.wrist }
func (p Pose) Gripper() int  { return p.gripper }

// IsZero reports whether p is the zero value (never produced by New).
func (p Pose) IsZero() bool { return p == Pose{} }

// Joint returns the value of joint j.
func (p Pose) Joint(j Joint) int {
	switch j {
	case Base:
		return p.base
	case Shoulder:
		return p.shoulder
	case Elbow:
		return p.elbow
	case Wrist:
		return p.wrist
	case Gripper:
		return p.gripper
	}
	panic(fmt.Sprintf("pose: unknown joint %d", int(j)))
}

// With returns a copy of p with joint j set to v. The name is carried over,
// so With on the zero Pose yields an unnamed pose that New would reject.
func (p Pose) With(j Joint, v int) Pose {
	switch j {
	case Base:
		p.base = v
	case Shoulder:
		p.shoulder = v
	case Elbow:
		p.elbow = v
	case Wrist:
		p.wrist = v
	case Gripper:
		p.gripper = v
	default:
		panic(fmt.Sprintf("pose: unknown joint %d", int(j)))
	}
	return p
}

// Named returns a copy of p carrying a different diagnostic name. Like New it
// rejects a blank name.
func (p Pose) Named(name string) (Pose, error) {
	if strings.TrimSpace(name) == "" {
		return Pose{}, ErrMissingName
	}
	p.name = name
	return p, nil
}

func (p Pose) String() string {
	return fmt.Sprintf("Pose(%s): base=%d, shoulder=%d, elbow=%d, wrist=%d, gripper=%d",
		p.name, p.base, p.shoulder, p.elbow, p.wrist, p.gripper)
}

type poseJSON struct {
	Name     string `json:"name"`
	Base     int    `json:"base"`
	Shoulder int    `json:"shoulder"`
	Elbow    int    `json:"elbow"`
	Wrist    int    `json:"wrist"`
	Gripper  int    `json:"gripper"`
}

func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(poseJSON{
		Name:     p.name,
		Base:     p.base,
		Shoulder: p.shoulder,
		Elbow:    p.elbow,
		Wrist:    p.wrist,
		Gripper:  p.gripper,
	})
}
