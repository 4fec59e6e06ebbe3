// Package driver ties the RTDE core together into one robot handle: the
// session and its receive loop, the command channel, the I/O facade, and
// the script and dashboard collaborators. One RobotDriver serves one robot.
package driver

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"urdriver/control"
	"urdriver/dashboard_client"
	"urdriver/io_control"
	"urdriver/rtde"
	"urdriver/script_client"
	"urdriver/shared"
	"urdriver/shared/event_bus"
)

// Options configures a RobotDriver. Zero values fall back to environment
// variables (UR_ROBOT_HOST, UR_RTDE_PORT, UR_SCRIPT_PORT,
// UR_DASHBOARD_PORT) and protocol defaults.
type Options struct {
	Host          string
	RTDEPort      int
	ScriptPort    int
	DashboardPort int

	// Frequency overrides the output stream rate. Zero selects by
	// controller generation: 125 Hz CB-series, 500 Hz e-Series.
	Frequency float64

	// UseUpperRangeRegisters moves the command window to base 24 so a
	// second control interface can own the lower window.
	UseUpperRangeRegisters bool

	// ControlScript is the command-channel program template uploaded once
	// per session (and again on reconnect), after $M.N preprocessing.
	// Empty means an externally managed program owns the controller side.
	ControlScript string

	// ExtraOutputNames extends the default telemetry subscription.
	ExtraOutputNames []string

	// Bus receives state updates and session events; nil disables
	// attachments.
	Bus event_bus.EventBus
}

// defaultOutputNames is the telemetry subscription every session carries;
// the command channel appends its register fields to this.
var defaultOutputNames = []string{
	"timestamp",
	"robot_status_bits", "safety_status_bits",
	"runtime_state", "robot_mode", "safety_mode",
	"speed_scaling", "target_speed_fraction",
	"actual_q", "actual_qd", "target_q",
	"actual_TCP_pose", "actual_TCP_speed", "actual_TCP_force",
	"joint_temperatures", "actual_current",
	"actual_digital_input_bits", "actual_digital_output_bits",
	"standard_analog_input0", "standard_analog_input1",
	"standard_analog_output0", "standard_analog_output1",
}

// RobotDriver is the top-level facade. Construct with New, bring up with
// Connect, and tear down with Disconnect. Motion and I/O calls are safe
// from one caller goroutine; concurrent callers must serialize or accept
// the per-command queueing the channel's mutex imposes.
type RobotDriver struct {
	SessionID string

	opts      Options
	bus       event_bus.EventBus
	sess      *rtde.Session
	channel   *control.Channel
	io        *io_control.Client
	script    *script_client.Client
	dashboard *dashboard_client.Client

	mu         sync.Mutex // serializes connect/reconnect/disconnect
	reconnects atomic.Uint64
}

// New builds a driver from options plus environment fallbacks. No network
// traffic happens until Connect.
func New(opts Options) *RobotDriver {
	if opts.Host == "" {
		opts.Host = shared.EnvOr("UR_ROBOT_HOST", "127.0.0.1")
	}
	if opts.RTDEPort == 0 {
		opts.RTDEPort = shared.EnvPort("UR_RTDE_PORT", shared.DEFAULT_RTDE_PORT)
	}
	if opts.ScriptPort == 0 {
		opts.ScriptPort = shared.EnvPort("UR_SCRIPT_PORT", shared.DEFAULT_SCRIPT_PORT)
	}
	if opts.DashboardPort == 0 {
		opts.DashboardPort = shared.EnvPort("UR_DASHBOARD_PORT", shared.DEFAULT_DASHBOARD_PORT)
	}

	d := &RobotDriver{
		SessionID: uuid.New().String(),
		opts:      opts,
		bus:       opts.Bus,
	}
	d.sess = rtde.NewSession(opts.Host, opts.RTDEPort, opts.Bus)
	d.channel = control.NewChannel(d.sess, opts.UseUpperRangeRegisters, opts.Bus)
	d.io = io_control.NewClient(d.sess)
	d.script = script_client.NewClient(opts.Host, opts.ScriptPort)
	d.dashboard = dashboard_client.NewClient(opts.Host, opts.DashboardPort)
	d.channel.SetReconnect(d.Reconnect)
	return d
}

// Connect runs the full bring-up: dial, negotiate, fetch the controller
// version, declare recipes, start streaming, upload the control script,
// and wait for the script's ready flag.
func (d *RobotDriver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bringUp()
}

func (d *RobotDriver) bringUp() error {
	if err := d.sess.Connect(); err != nil {
		return err
	}
	if err := d.sess.NegotiateProtocolVersion(); err != nil {
		d.sess.Disconnect()
		return err
	}
	version, err := d.sess.FetchControllerVersion()
	if err != nil {
		d.sess.Disconnect()
		return err
	}
	d.script.SetControllerVersion(version)

	frequency := d.opts.Frequency
	if frequency == 0 {
		frequency = version.Frequency()
	}

	names := append([]string{}, defaultOutputNames...)
	names = append(names, d.channel.OutputNames()...)
	names = append(names, d.opts.ExtraOutputNames...)
	if err := d.sess.SendOutputSetup(names, frequency); err != nil {
		d.sess.Disconnect()
		return err
	}
	if err := d.channel.DeclareRecipes(); err != nil {
		d.sess.Disconnect()
		return err
	}
	if err := d.io.DeclareRecipes(); err != nil {
		d.sess.Disconnect()
		return err
	}
	if err := d.sess.Start(); err != nil {
		d.sess.Disconnect()
		return err
	}

	if d.opts.ControlScript != "" {
		if err := d.script.UploadControlScript(d.opts.ControlScript); err != nil {
			d.sess.Disconnect()
			return err
		}
	}
	if err := d.channel.WaitForReady(shared.SETUP_TIMEOUT); err != nil {
		d.sess.Disconnect()
		return err
	}

	shared.DebugPrint("robot driver %s up against %s (controller %s)", d.SessionID, d.opts.Host, version)
	return nil
}

// Reconnect tears the session down and repeats the bring-up sequence,
// including the control script upload. Used after a transport failure.
func (d *RobotDriver) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reconnects.Add(1)
	d.sess.Disconnect()
	return d.bringUp()
}

// Reconnects counts Reconnect calls over the driver's lifetime.
func (d *RobotDriver) Reconnects() uint64 {
	return d.reconnects.Load()
}

// LastCommandLatency mirrors the command channel's send-to-DONE duration
// of the most recent completed command.
func (d *RobotDriver) LastCommandLatency() time.Duration {
	return d.channel.LastCommandLatency()
}

// Disconnect stops the receive loop, closes the RTDE socket, and drops the
// dashboard connection if one is up.
func (d *RobotDriver) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sess.Disconnect()
	d.dashboard.Disconnect()
}

func (d *RobotDriver) IsConnected() bool {
	return d.sess.IsConnected()
}

// Robot exposes the live state snapshot.
func (d *RobotDriver) Robot() *rtde.RobotState {
	return d.sess.Robot()
}

// Session exposes the underlying RTDE session.
func (d *RobotDriver) Session() *rtde.Session {
	return d.sess
}

// Control exposes the command channel.
func (d *RobotDriver) Control() *control.Channel {
	return d.channel
}

// IO exposes the I/O facade.
func (d *RobotDriver) IO() *io_control.Client {
	return d.io
}

// Dashboard exposes the dashboard collaborator. Call its Connect before
// first use.
func (d *RobotDriver) Dashboard() *dashboard_client.Client {
	return d.dashboard
}

// ControllerVersion returns the version fetched during bring-up.
func (d *RobotDriver) ControllerVersion() shared.ControllerVersion {
	return d.sess.ControllerVersion()
}

// SendCustomScript pushes one-shot script text through the secondary
// interface. The running control program is replaced; upload the control
// script again (or Reconnect) to resume command-channel use.
func (d *RobotDriver) SendCustomScript(text string) error {
	return d.script.SendCustomScript(text)
}

// SendCustomScriptFile pushes a script file through the secondary
// interface.
func (d *RobotDriver) SendCustomScriptFile(path string) error {
	return d.script.SendCustomScriptFile(path)
}

// MovePath serializes the path against the command register window and
// runs it on the controller as a one-shot function. Synchronous calls
// block until the path's done-register write and then restore the control
// script. Async calls return once the script is sent; watch progress via
// AsyncProgress and finish with WaitForPathDone.
func (d *RobotDriver) MovePath(path *control.Path, async bool) error {
	script, err := path.ToScript(d.channel.Base())
	if err != nil {
		return err
	}
	if err := d.script.SendCustomScript(script); err != nil {
		return err
	}
	if async {
		return nil
	}
	return d.WaitForPathDone(shared.PATH_COMMAND_TIMEOUT)
}

// WaitForPathDone blocks until a running path writes its done marker, then
// restores the control script so the command channel works again.
func (d *RobotDriver) WaitForPathDone(timeout time.Duration) error {
	base := d.channel.Base()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !d.sess.IsConnected() {
			return shared.ErrConnectionLost
		}
		if d.Robot().GetOutputIntRegister(base) == shared.UR_CONTROLLER_DONE_WITH_CMD {
			return d.restoreControlScript()
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("%w: path did not finish", shared.ErrTimeout)
}

func (d *RobotDriver) restoreControlScript() error {
	if d.opts.ControlScript == "" {
		return nil
	}
	if err := d.script.UploadControlScript(d.opts.ControlScript); err != nil {
		return err
	}
	return d.channel.WaitForReady(shared.SETUP_TIMEOUT)
}

// AsyncProgress mirrors the command channel's progress register.
func (d *RobotDriver) AsyncProgress() int {
	return d.channel.AsyncProgress()
}

// Convenience delegations for the common operations.

func (d *RobotDriver) MoveJ(q shared.Vector6, velocity, acceleration float64, async bool) error {
	return d.channel.MoveJ(q, velocity, acceleration, async)
}

func (d *RobotDriver) MoveL(pose shared.Vector6, velocity, acceleration float64, async bool) error {
	return d.channel.MoveL(pose, velocity, acceleration, async)
}

func (d *RobotDriver) StopJ(deceleration float64) error {
	return d.channel.StopJ(deceleration)
}

func (d *RobotDriver) StopL(deceleration float64) error {
	return d.channel.StopL(deceleration)
}

func (d *RobotDriver) SpeedJ(qd shared.Vector6, acceleration, time float64) error {
	return d.channel.SpeedJ(qd, acceleration, time)
}

func (d *RobotDriver) SpeedL(xd shared.Vector6, acceleration, time float64) error {
	return d.channel.SpeedL(xd, acceleration, time)
}

func (d *RobotDriver) SetStandardDigitalOut(id int, level bool) error {
	return d.io.SetStandardDigitalOut(id, level)
}

func (d *RobotDriver) SetToolDigitalOut(id int, level bool) error {
	return d.io.SetToolDigitalOut(id, level)
}

func (d *RobotDriver) SetSpeedSlider(fraction float64) error {
	return d.io.SetSpeedSlider(fraction)
}

func (d *RobotDriver) GetActualQ() shared.Vector6 {
	return d.Robot().ActualQ()
}

func (d *RobotDriver) GetActualTCPPose() shared.Vector6 {
	return d.Robot().ActualTCPPose()
}
