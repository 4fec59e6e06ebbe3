package control

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"urdriver/rtde"
	"urdriver/shared"
	"urdriver/shared/event_bus"
)

// UPPER_RANGE_BASE shifts the register window so a second program can use
// the lower window without interference.
const UPPER_RANGE_BASE = 24

// POLL_INTERVAL paces the register polling loops. One controller tick at
// 500 Hz; good enough for 125 Hz controllers too.
const POLL_INTERVAL = 2 * time.Millisecond

// RESULT_REGISTER_COUNT is the number of output double registers reserved
// for command return vectors.
const RESULT_REGISTER_COUNT = 6

// Payload register layout within the command recipe, relative to base.
// The control script decodes the same offsets per command code:
//
//	int  base+0        command code
//	int  base+1        async flag, or force-mode type / history steps
//	int  base+2..7     selection vector (force mode), jog feature at +2
//	dbl  base+0..5     primary vector: joint target, pose, task frame
//	dbl  base+6..11    secondary vector: wrench, via pose, q-near
//	dbl  base+12..17   scalars: velocity, acceleration, radius/time,
//	                   lookahead or movec mode, gain / force-mode limits
const (
	intOffsetCommand  = 0
	intOffsetFlag     = 1
	intOffsetSelector = 2
	dblOffsetVec1     = 0
	dblOffsetVec2     = 6
	dblOffsetScalars  = 12
	intRegisterCount  = 8
	dblRegisterCount  = 24
)

// Command is one register-mailbox request: the code, the payload slots the
// code consumes, and the wait bound. Slots the command does not use stay
// zero on the wire.
type Command struct {
	Code      int
	Async     bool
	Flag      int        // force-mode type, history steps
	Selection [6]int     // force-mode compliance selection
	Vec1      shared.Vector6
	Vec2      shared.Vector6
	Scalars   [6]float64 // written to dbl base+12..17
	Timeout   time.Duration
}

// Channel drives the request/acknowledge handshake with the control
// script. One command is in flight at a time; the send mutex serializes
// callers. A transport failure mid-command triggers at most one
// reconnect-and-resend before surfacing ErrCommandRetry.
type Channel struct {
	sess *rtde.Session
	base int

	recipeID uint8
	declared bool

	mu          sync.Mutex
	reconnect   func() error
	bus         event_bus.EventBus
	lastLatency atomic.Int64 // nanoseconds of the last completed command
}

// NewChannel creates a command channel over an RTDE session. When
// useUpperRange is set the register window starts at 24 instead of 0.
func NewChannel(sess *rtde.Session, useUpperRange bool, bus event_bus.EventBus) *Channel {
	base := 0
	if useUpperRange {
		base = UPPER_RANGE_BASE
	}
	return &Channel{
		sess: sess,
		base: base,
		bus:  bus,
	}
}

// Base returns the register window offset (0 or 24).
func (c *Channel) Base() int {
	return c.base
}

// SetReconnect installs the callback used for the single retry after a
// transport failure. The callback must restore a started session with the
// same recipes.
func (c *Channel) SetReconnect(fn func() error) {
	c.reconnect = fn
}

// OutputNames returns the output recipe fields the channel needs beyond
// the caller's telemetry subscription: the done flag, the async progress
// counter, and the return-value double registers.
func (c *Channel) OutputNames() []string {
	names := []string{
		rtde.OutputIntRegister(c.base + 0),
		rtde.OutputIntRegister(c.base + 1),
	}
	for i := 0; i < RESULT_REGISTER_COUNT; i++ {
		names = append(names, rtde.OutputDoubleRegister(c.base+i))
	}
	return names
}

// DeclareRecipes sets up the channel's input recipe. Must run after
// protocol negotiation and before the session starts streaming.
func (c *Channel) DeclareRecipes() error {
	var names []string
	for i := 0; i < intRegisterCount; i++ {
		names = append(names, rtde.InputIntRegister(c.base+i))
	}
	for i := 0; i < dblRegisterCount; i++ {
		names = append(names, rtde.InputDoubleRegister(c.base+i))
	}

	id, err := c.sess.SendInputSetup(names)
	if err != nil {
		return fmt.Errorf("command recipe: %w", err)
	}
	c.recipeID = id
	c.declared = true
	return nil
}

// WaitForReady blocks until the control script reports ready for commands,
// bounded by timeout. Called once after the script upload and again after
// every reconnect.
func (c *Channel) WaitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !c.sess.IsConnected() {
			return shared.ErrConnectionLost
		}
		if c.sess.Robot().GetOutputIntRegister(c.base) == shared.UR_CONTROLLER_RDY_FOR_CMD {
			return nil
		}
		time.Sleep(POLL_INTERVAL)
	}
	return fmt.Errorf("%w: control script not ready", shared.ErrTimeout)
}

// AsyncProgress reads the async progress register: -1 when no async motion
// is in flight, otherwise the waypoint index being executed.
func (c *Channel) AsyncProgress() int {
	return int(c.sess.Robot().GetOutputIntRegister(c.base + 1))
}

// Execute runs one command through the mailbox: wait ready, emit the input
// frame, await DONE, clear back to NOOP. Returns the snapshot of the
// result double registers captured after DONE.
//
// Synchronous commands hold the caller until the controller finishes the
// action. Async commands are acknowledged as soon as the script starts the
// motion; progress is then observable via AsyncProgress.
func (c *Channel) Execute(cmd Command) ([RESULT_REGISTER_COUNT]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.executeOnce(cmd)
	if err == nil {
		return result, nil
	}
	if !isTransportError(err) || c.reconnect == nil {
		return result, err
	}

	// One reconnect-and-resend, then give up. The source this channel
	// descends from recursed without a bound here.
	shared.DebugPrint("command %d hit transport error (%v), reconnecting once", cmd.Code, err)
	if rerr := c.reconnect(); rerr != nil {
		return result, fmt.Errorf("%w: reconnect failed: %v", shared.ErrCommandRetry, rerr)
	}
	result, err = c.executeOnce(cmd)
	if err != nil && isTransportError(err) {
		return result, fmt.Errorf("%w: %v", shared.ErrCommandRetry, err)
	}
	return result, err
}

func (c *Channel) executeOnce(cmd Command) ([RESULT_REGISTER_COUNT]float64, error) {
	var result [RESULT_REGISTER_COUNT]float64
	if !c.declared {
		return result, fmt.Errorf("%w: command recipe not declared", shared.ErrSetupRejected)
	}

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = shared.COMMAND_TIMEOUT
	}

	if err := c.WaitForReady(timeout); err != nil {
		return result, err
	}

	if err := c.sess.Send(c.recipeID, c.frameValues(cmd)); err != nil {
		return result, err
	}
	start := time.Now()
	if c.bus != nil {
		c.bus.PublishData(event_bus.EVENT_COMMAND_SENT, cmd.Code)
	}

	if err := c.waitDone(timeout); err != nil {
		return result, err
	}

	for i := 0; i < RESULT_REGISTER_COUNT; i++ {
		result[i] = c.sess.Robot().GetOutputDoubleRegister(c.base + i)
	}

	if err := c.clear(); err != nil {
		return result, err
	}

	latency := time.Since(start)
	c.lastLatency.Store(int64(latency))
	if c.bus != nil {
		c.bus.PublishData(event_bus.EVENT_COMMAND_DONE, latency)
	}
	return result, nil
}

// LastCommandLatency returns the send-to-DONE duration of the most recent
// completed command, zero before the first one.
func (c *Channel) LastCommandLatency() time.Duration {
	return time.Duration(c.lastLatency.Load())
}

// frameValues maps a command onto the recipe's register fields. Exactly
// one input frame per accepted command carries this code.
func (c *Channel) frameValues(cmd Command) map[string]interface{} {
	values := map[string]interface{}{
		rtde.InputIntRegister(c.base + intOffsetCommand): int32(cmd.Code),
	}
	flag := cmd.Flag
	if cmd.Async {
		flag = 1
	}
	values[rtde.InputIntRegister(c.base+intOffsetFlag)] = int32(flag)
	for i, sel := range cmd.Selection {
		values[rtde.InputIntRegister(c.base+intOffsetSelector+i)] = int32(sel)
	}
	for i, v := range cmd.Vec1 {
		values[rtde.InputDoubleRegister(c.base+dblOffsetVec1+i)] = v
	}
	for i, v := range cmd.Vec2 {
		values[rtde.InputDoubleRegister(c.base+dblOffsetVec2+i)] = v
	}
	for i, v := range cmd.Scalars {
		values[rtde.InputDoubleRegister(c.base+dblOffsetScalars+i)] = v
	}
	return values
}

// waitDone polls for the DONE acknowledgement. A program that leaves the
// running state while we wait means a protective or emergency stop took
// the script down; that surfaces as a controller error, not a timeout.
func (c *Channel) waitDone(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	robot := c.sess.Robot()
	sawRunning := robot.IsProgramRunning()

	for time.Now().Before(deadline) {
		if !c.sess.IsConnected() {
			if err := c.sess.LastError(); err != nil {
				return err
			}
			return shared.ErrConnectionLost
		}
		if robot.GetOutputIntRegister(c.base) == shared.UR_CONTROLLER_DONE_WITH_CMD {
			return nil
		}
		if robot.IsProtectiveStopped() || robot.IsEmergencyStopped() {
			return fmt.Errorf("%w: safety stop while awaiting acknowledgement", shared.ErrControllerStopped)
		}
		running := robot.IsProgramRunning()
		if sawRunning && !running {
			return fmt.Errorf("%w: program left running state", shared.ErrControllerStopped)
		}
		sawRunning = sawRunning || running
		time.Sleep(POLL_INTERVAL)
	}
	return fmt.Errorf("%w: no acknowledgement for command", shared.ErrTimeout)
}

// clear writes the command register back to NOOP, prompting the script to
// re-establish READY. All other fields ride along as zero.
func (c *Channel) clear() error {
	values := map[string]interface{}{
		rtde.InputIntRegister(c.base + intOffsetCommand): int32(CMD_NOOP),
	}
	return c.sess.Send(c.recipeID, values)
}

func isTransportError(err error) bool {
	return errors.Is(err, shared.ErrConnectionLost) || errors.Is(err, shared.ErrNotConnected)
}
