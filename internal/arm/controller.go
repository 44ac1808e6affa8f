// Package arm holds the arm controller: the connection state machine that
// gates every commanded move through the safety validator before it reaches
// the hardware link.
package arm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/armguard/internal/monitoring"
	"github.com/banshee-data/armguard/internal/pose"
	"github.com/banshee-data/armguard/internal/safety"
	"github.com/banshee-data/armguard/internal/timeutil"
)

// Link is the hardware link the controller dispatches to.
type Link interface {
	MoveTo(ctx context.Context, p pose.Pose) error
	OpenGripper(ctx context.Context) error
	CloseGripper(ctx context.Context) error
	// Halt must not block on an in-flight MoveTo beyond one write.
	Halt() error
	Close() error
}

// Opener opens a new Link.
type Opener func(ctx context.Context) (Link, error)

// Config holds the controller's collaborators. Zero values select the stock
// validator and limits, the real clock and no journal.
type Config struct {
	Validator *safety.Validator
	Limits    *safety.EmergencyLimits
	Recorder  Recorder
	Clock     timeutil.Clock
}

// Controller owns the connection state and the last commanded pose.
type Controller struct {
	open      Opener
	validator *safety.Validator
	limits    safety.EmergencyLimits
	recorder  Recorder
	clock     timeutil.Clock

	// moveMu serialises dispatch so joint commands never interleave.
	moveMu sync.Mutex

	stateMu    sync.Mutex
	state      State
	link       Link
	current    *pose.Pose
	cancelMove context.CancelCauseFunc
	// stops counts EmergencyStop and Disconnect calls. A move that sees it
	// change between entry and dispatch is abandoned with stopCause.
	stops     uint64
	stopCause error
}

// NewController returns a disconnected controller.
func NewController(open Opener, cfg Config) *Controller {
	c := &Controller{
		open:      open,
		validator: cfg.Validator,
		recorder:  cfg.Recorder,
		clock:     cfg.Clock,
		limits:    safety.DefaultEmergencyLimits(),
	}
	if c.validator == nil {
		c.validator = safety.NewDefaultValidator()
	}
	if cfg.Limits != nil {
		c.limits = *cfg.Limits
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	return c
}

// Status is a point-in-time view of the controller.
type Status struct {
	State State        `json:"state"`
	Pose  *pose.Pose   `json:"pose,omitempty"`
	Stats safety.Stats `json:"stats"`
}

// Status returns the current state, pose and safety counters.
func (c *Controller) Status() Status {
	c.stateMu.Lock()
	st := Status{State: c.state}
	if c.current != nil {
		p := *c.current
		st.Pose = &p
	}
	c.stateMu.Unlock()
	st.Stats = c.validator.Stats()
	return st
}

// State returns the connection state.
func (c *Controller) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// CurrentPose returns the last successfully dispatched pose, if any.
func (c *Controller) CurrentPose() (pose.Pose, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.current == nil {
		return pose.Pose{}, false
	}
	return *c.current, true
}

// Validator returns the validator gating this controller.
func (c *Controller) Validator() *safety.Validator { return c.validator }

// Stats returns the validator's counters.
func (c *Controller) Stats() safety.Stats { return c.validator.Stats() }

// ResetStats zeroes the validator's counters.
func (c *Controller) ResetStats() { c.validator.ResetStats() }

// Connect opens the link and moves to the home pose. A failed home move is
// logged and leaves the controller connected with no known pose. Connecting
// an already connected controller is a no-op.
func (c *Controller) Connect(ctx context.Context) error {
	c.moveMu.Lock()
	c.stateMu.Lock()
	if c.state.Connected() {
		c.stateMu.Unlock()
		c.moveMu.Unlock()
		return nil
	}
	c.stateMu.Unlock()

	link, err := c.open(ctx)
	if err != nil {
		c.moveMu.Unlock()
		monitoring.Logf("Failed to connect: %v", err)
		return &TransportError{Op: "connect", Err: err}
	}

	c.stateMu.Lock()
	c.link = link
	c.state = ConnectedNoPose
	c.current = nil
	c.stateMu.Unlock()
	c.moveMu.Unlock()

	if err := c.MoveToPose(ctx, pose.Home); err != nil {
		monitoring.Logf("connected but failed to reach home: %v", err)
	}
	return nil
}

// Disconnect closes the link from any state. In-flight and queued moves are
// abandoned with ErrDisconnected.
func (c *Controller) Disconnect() error {
	c.stateMu.Lock()
	if !c.state.Connected() {
		c.stateMu.Unlock()
		return nil
	}
	link := c.link
	c.stopLocked(ErrDisconnected)
	c.link = nil
	c.current = nil
	c.state = Disconnected
	c.stateMu.Unlock()

	monitoring.Logf("Disconnected from robot arm")
	if err := link.Close(); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// connectedLink returns the open link and last pose, or ErrNotConnected.
func (c *Controller) connectedLink() (Link, *pose.Pose, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if !c.state.Connected() {
		return nil, nil, ErrNotConnected
	}
	var cur *pose.Pose
	if c.current != nil {
		p := *c.current
		cur = &p
	}
	return c.link, cur, nil
}

// stopLocked cancels any in-flight dispatch with cause and invalidates moves
// that have not dispatched yet. c.stateMu must be held.
func (c *Controller) stopLocked(cause error) {
	c.stops++
	c.stopCause = cause
	if c.cancelMove != nil {
		c.cancelMove(cause)
	}
}

// stopCount returns the stop counter for a move about to queue on moveMu.
func (c *Controller) stopCount() uint64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.stops
}

// dispatchContext derives a context that EmergencyStop and Disconnect can
// cancel. If either ran since the caller read stops, nothing may be sent and
// the stop's cause is returned instead. The returned release must be called
// when dispatch ends.
func (c *Controller) dispatchContext(ctx context.Context, stops uint64) (context.Context, func(), error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.stops != stops {
		return nil, nil, c.stopCause
	}
	mctx, cancel := context.WithCancelCause(ctx)
	c.cancelMove = cancel
	return mctx, func() {
		c.stateMu.Lock()
		c.cancelMove = nil
		c.stateMu.Unlock()
		cancel(nil)
	}, nil
}

// transportError converts a link failure. A cancellation that came from
// EmergencyStop or Disconnect rather than the caller's ctx carries that cause.
func transportError(op string, ctx, mctx context.Context, err error) *TransportError {
	if mctx.Err() != nil && ctx.Err() == nil {
		err = context.Cause(mctx)
	}
	return &TransportError{Op: op, Err: err}
}

// outcomeOf classifies a failed dispatch for the journal.
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrStopped):
		return OutcomeStopped
	case errors.Is(err, ErrDisconnected):
		return OutcomeDisconnected
	default:
		return OutcomeTransport
	}
}

// MoveToPose validates target on its own and, when the current pose is known,
// the transition to it. Only if both pass are the joint commands sent. The
// recorded pose changes only after a successful dispatch.
func (c *Controller) MoveToPose(ctx context.Context, target pose.Pose) error {
	stops := c.stopCount()
	c.moveMu.Lock()
	defer c.moveMu.Unlock()

	link, cur, err := c.connectedLink()
	if err != nil {
		monitoring.Logf("Error: %v", err)
		return err
	}

	if err := c.validator.CheckPose(target); err != nil {
		c.recordRejection(target, err)
		return err
	}
	from := ""
	if cur != nil {
		from = cur.Name()
		if err := c.validator.CheckTransition(*cur, target); err != nil {
			c.recordRejection(target, err)
			return err
		}
	}

	start := c.clock.Now()
	rec := MoveRecord{ID: uuid.NewString(), At: start, From: from, Target: target, Outcome: OutcomeOK}

	mctx, release, err := c.dispatchContext(ctx, stops)
	if err != nil {
		terr := &TransportError{Op: "move", Err: err}
		rec.Outcome = outcomeOf(terr)
		rec.Error = terr.Error()
		c.recordMove(rec)
		monitoring.Logf("Move to pose %s abandoned: %v", target.Name(), terr)
		return terr
	}
	defer release()

	if err := link.MoveTo(mctx, target); err != nil {
		terr := transportError("move", ctx, mctx, err)
		rec.Outcome = outcomeOf(terr)
		rec.Error = terr.Error()
		rec.Duration = c.clock.Since(start)
		c.recordMove(rec)
		monitoring.Logf("Error moving to pose %s: %v", target.Name(), terr)
		return terr
	}

	c.stateMu.Lock()
	if c.link == link && c.state.Connected() {
		p := target
		c.current = &p
		c.state = ConnectedAtPose
	}
	c.stateMu.Unlock()

	rec.Duration = c.clock.Since(start)
	c.recordMove(rec)
	monitoring.Logf("Moved to pose: %s", target.Name())
	return nil
}

// Home moves to the home pose.
func (c *Controller) Home(ctx context.Context) error {
	return c.MoveToPose(ctx, pose.Home)
}

// OpenGripper opens the gripper. The recorded pose is unchanged.
func (c *Controller) OpenGripper(ctx context.Context) error {
	return c.gripper(ctx, "open gripper", Link.OpenGripper)
}

// CloseGripper closes the gripper. The recorded pose is unchanged.
func (c *Controller) CloseGripper(ctx context.Context) error {
	return c.gripper(ctx, "close gripper", Link.CloseGripper)
}

func (c *Controller) gripper(ctx context.Context, op string, send func(Link, context.Context) error) error {
	stops := c.stopCount()
	c.moveMu.Lock()
	defer c.moveMu.Unlock()

	link, _, err := c.connectedLink()
	if err != nil {
		return err
	}

	mctx, release, err := c.dispatchContext(ctx, stops)
	if err != nil {
		terr := &TransportError{Op: op, Err: err}
		monitoring.Logf("Error: %v", terr)
		return terr
	}
	defer release()

	if err := send(link, mctx); err != nil {
		terr := transportError(op, ctx, mctx, err)
		monitoring.Logf("Error: %v", terr)
		return terr
	}
	monitoring.Logf("%s: done", op)
	return nil
}

// RunSequence moves through seq in order and stops at the first failure. It
// returns the number of poses reached.
func (c *Controller) RunSequence(ctx context.Context, seq []pose.Pose) (int, error) {
	for i, p := range seq {
		if err := c.MoveToPose(ctx, p); err != nil {
			return i, fmt.Errorf("sequence step %d (%s): %w", i+1, p.Name(), err)
		}
	}
	return len(seq), nil
}

// EmergencyStop sends the halt command without any validation. It does not
// wait for an in-flight move: that move is cancelled and stops before its next
// joint command. Moves still validating or queued behind it are abandoned
// with ErrStopped before anything is sent. The recorded pose is left as it was.
func (c *Controller) EmergencyStop() error {
	c.stateMu.Lock()
	if !c.state.Connected() {
		c.stateMu.Unlock()
		return ErrNotConnected
	}
	link := c.link
	c.stopLocked(ErrStopped)
	c.stateMu.Unlock()

	err := link.Halt()
	monitoring.Logf("EMERGENCY STOP ACTIVATED")
	c.recordEvent(SafetyEvent{Kind: EventStop, Detail: "halt sent"})
	if err != nil {
		return &TransportError{Op: "emergency stop", Err: err}
	}
	return nil
}

// Guard evaluates a sensor snapshot and triggers an emergency stop on the
// first violated condition. The condition error is returned either way; a
// failed stop is joined to it. Readings are still evaluated while
// disconnected, but nothing is sent.
func (c *Controller) Guard(s safety.SensorSnapshot) (bool, error) {
	ok, err := c.limits.Check(s)
	if ok {
		return true, nil
	}
	monitoring.Logf("Emergency condition: %v", err)
	c.recordEvent(SafetyEvent{Kind: EventEmergency, Detail: err.Error()})

	if c.State().Connected() {
		if stopErr := c.EmergencyStop(); stopErr != nil {
			return false, errors.Join(err, stopErr)
		}
	}
	return false, err
}

// EmergencyLimits returns the thresholds Guard evaluates.
func (c *Controller) EmergencyLimits() safety.EmergencyLimits { return c.limits }

func (c *Controller) recordRejection(target pose.Pose, err error) {
	c.recordEvent(SafetyEvent{Kind: EventKind(err), Pose: target.Name(), Detail: err.Error()})
}

func (c *Controller) recordEvent(ev SafetyEvent) {
	if c.recorder == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = c.clock.Now()
	if err := c.recorder.RecordSafetyEvent(ev); err != nil {
		monitoring.Logf("failed to record safety event: %v", err)
	}
}

func (c *Controller) recordMove(rec MoveRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordMove(rec); err != nil {
		monitoring.Logf("failed to record move: %v", err)
	}
}
