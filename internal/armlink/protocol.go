// Package armlink speaks the arm controller's byte protocol over a serial
// multiplexer: single-byte mode and gripper commands, and per-axis targets
// sent as a selector byte followed by the angle in ASCII and a newline.
package armlink

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/armguard/internal/pose"
)

// Firmware commands.
const (
	CmdManual       byte = 'm'
	CmdExitManual   byte = 'x'
	CmdOpenGripper  byte = 'o'
	CmdCloseGripper byte = 'c'
	CmdHalt         byte = 'h'
)

// MoveJoints are the joints a pose move drives, in dispatch order. The
// gripper is driven with CmdOpenGripper/CmdCloseGripper instead.
var MoveJoints = []pose.Joint{pose.Base, pose.Shoulder, pose.Elbow, pose.Wrist}

var axisSelectors = map[pose.Joint]byte{
	pose.Base:     'b',
	pose.Shoulder: 's',
	pose.Elbow:    'e',
	pose.Wrist:    'w',
}

// AxisSelector returns the selector byte for j. The gripper has none.
func AxisSelector(j pose.Joint) (byte, bool) {
	b, ok := axisSelectors[j]
	return b, ok
}

// EncodeAngle renders an axis target as the firmware expects it.
func EncodeAngle(angle int) []byte {
	return append(strconv.AppendInt(nil, int64(angle), 10), '\n')
}

// EncodeMove returns the full byte stream for moving to p, without settle
// delays. Useful for dry runs and tests.
func EncodeMove(p pose.Pose) []byte {
	out := []byte{CmdManual}
	for _, j := range MoveJoints {
		sel, _ := AxisSelector(j)
		out = append(out, sel)
		out = append(out, EncodeAngle(p.Joint(j))...)
	}
	return append(out, CmdExitManual)
}

// UnknownAxisError reports a joint with no axis selector.
type UnknownAxisError struct {
	Joint pose.Joint
}

func (e *UnknownAxisError) Error() string {
	return fmt.Sprintf("no axis selector for joint %s", e.Joint)
}
