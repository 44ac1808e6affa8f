package armlink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/armguard/internal/monitoring"
	"github.com/banshee-data/armguard/internal/pose"
	"github.com/banshee-data/armguard/internal/serialmux"
	"github.com/banshee-data/armguard/internal/timeutil"
)

// Timing holds the settle delays the firmware needs between commands.
type Timing struct {
	Command time.Duration // after every single-byte command
	Mode    time.Duration // after entering manual mode
	Axis    time.Duration // after each axis target
	Reset   time.Duration // after opening the port; the board resets on connect
}

// DefaultTiming returns the delays the stock firmware is known to tolerate.
func DefaultTiming() Timing {
	return Timing{
		Command: 100 * time.Millisecond,
		Mode:    200 * time.Millisecond,
		Axis:    500 * time.Millisecond,
		Reset:   2 * time.Second,
	}
}

// Link drives the arm over a serial multiplexer.
type Link struct {
	mux    serialmux.SerialMuxInterface
	timing Timing
	clock  timeutil.Clock

	stopMonitor context.CancelFunc
	monitorDone chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// New wraps an already open multiplexer. The caller owns Monitor.
func New(mux serialmux.SerialMuxInterface, timing Timing, clock timeutil.Clock) *Link {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Link{mux: mux, timing: timing, clock: clock}
}

// Open opens the serial device at path through factory, starts reading
// replies and waits for the controller board to come out of reset.
func Open(ctx context.Context, factory serialmux.SerialPortFactory, path string, opts serialmux.PortOptions, timing Timing, clock timeutil.Clock) (*Link, error) {
	port, err := factory.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	l := New(serialmux.NewSerialMux(port), timing, clock)
	l.startMonitor()

	if err := l.clock.SleepContext(ctx, timing.Reset); err != nil {
		l.Close()
		return nil, err
	}
	monitoring.Logf("connected to arm on %s", path)
	return l, nil
}

func (l *Link) startMonitor() {
	ctx, cancel := context.WithCancel(context.Background())
	l.stopMonitor = cancel
	l.monitorDone = make(chan struct{})
	go func() {
		defer close(l.monitorDone)
		if err := l.mux.Monitor(ctx); err != nil && ctx.Err() == nil {
			monitoring.Logf("serial monitor stopped: %v", err)
		}
	}()
}

// Mux returns the underlying multiplexer for admin routes and reply logging.
func (l *Link) Mux() serialmux.SerialMuxInterface {
	return l.mux
}

func (l *Link) command(ctx context.Context, c byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.mux.SendRaw([]byte{c}); err != nil {
		return fmt.Errorf("send %q: %w", c, err)
	}
	return l.clock.SleepContext(ctx, l.timing.Command)
}

// EnterManual puts the firmware into manual joint control.
func (l *Link) EnterManual(ctx context.Context) error {
	if err := l.command(ctx, CmdManual); err != nil {
		return err
	}
	return l.clock.SleepContext(ctx, l.timing.Mode)
}

// SetJoint sends one axis target. Manual mode must already be active.
func (l *Link) SetJoint(ctx context.Context, j pose.Joint, angle int) error {
	sel, ok := AxisSelector(j)
	if !ok {
		return &UnknownAxisError{Joint: j}
	}
	if err := l.command(ctx, sel); err != nil {
		return err
	}
	if err := l.mux.SendRaw(EncodeAngle(angle)); err != nil {
		return fmt.Errorf("send %s angle: %w", j, err)
	}
	return l.clock.SleepContext(ctx, l.timing.Axis)
}

// ExitManual leaves manual joint control.
func (l *Link) ExitManual(ctx context.Context) error {
	return l.command(ctx, CmdExitManual)
}

// MoveTo sends the base, shoulder, elbow and wrist targets of p inside a
// manual mode block. It stops at the first error, including cancellation of
// ctx between commands.
func (l *Link) MoveTo(ctx context.Context, p pose.Pose) error {
	if err := l.EnterManual(ctx); err != nil {
		return err
	}
	for _, j := range MoveJoints {
		if err := l.SetJoint(ctx, j, p.Joint(j)); err != nil {
			return err
		}
	}
	return l.ExitManual(ctx)
}

// OpenGripper opens the gripper.
func (l *Link) OpenGripper(ctx context.Context) error {
	return l.command(ctx, CmdOpenGripper)
}

// CloseGripper closes the gripper.
func (l *Link) CloseGripper(ctx context.Context) error {
	return l.command(ctx, CmdCloseGripper)
}

// Halt sends the halt command immediately. It takes no context and does not
// wait for the settle delay.
func (l *Link) Halt() error {
	if err := l.mux.SendRaw([]byte{CmdHalt}); err != nil {
		return fmt.Errorf("send halt: %w", err)
	}
	return nil
}

// Close stops reply monitoring and closes the port. Safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.mux.Close()
		if l.stopMonitor != nil {
			l.stopMonitor()
			<-l.monitorDone
		}
	})
	return l.closeErr
}
