package driver

import (
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"urdriver/control"
	"urdriver/rtde"
	"urdriver/shared"
	"urdriver/shared/event_bus"
)

func newMock(t *testing.T) *rtde.MockController {
	t.Helper()
	mock, err := rtde.NewMockController()
	if err != nil {
		t.Fatalf("mock listen failed: %v", err)
	}
	go mock.Serve()
	t.Cleanup(mock.Close)
	return mock
}

func newTestDriver(t *testing.T, mock *rtde.MockController, opts Options) *RobotDriver {
	t.Helper()
	opts.Host = mock.Host()
	opts.RTDEPort = mock.Port()
	if opts.ScriptPort == 0 {
		opts.ScriptPort = 1 // unused unless a test wires a listener
	}
	if opts.DashboardPort == 0 {
		opts.DashboardPort = 1
	}
	d := New(opts)
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(d.Disconnect)
	return d
}

func waitFrames(t *testing.T, d *RobotDriver, min uint64, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if d.Robot().FramesDecoded() >= min {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Expected %d frames within %v, got %d", min, within, d.Robot().FramesDecoded())
}

func TestDriverBringUp(t *testing.T) {
	mock := newMock(t)
	bus := event_bus.NewEventBus()

	var updates atomic.Int32
	bus.Subscribe(event_bus.EVENT_STATE_UPDATE, nil, func(event event_bus.Event) {
		updates.Add(1)
	})

	d := newTestDriver(t, mock, Options{Bus: bus})

	if !d.IsConnected() {
		t.Fatal("Expected connected driver")
	}
	if d.ControllerVersion().Major != 5 {
		t.Errorf("Expected controller major 5, got %s", d.ControllerVersion())
	}

	// The receive loop writes at least two frames into the snapshot within a second.
	waitFrames(t, d, 2, time.Second)
	if updates.Load() == 0 {
		t.Error("Expected state updates on the event bus")
	}

	if err := d.MoveJ(shared.Vector6{0, -1.57, 0, -1.57, 0, 0}, 1.05, 1.4, false); err != nil {
		t.Fatalf("MoveJ failed: %v", err)
	}
	if err := d.SetStandardDigitalOut(3, true); err != nil {
		t.Fatalf("SetStandardDigitalOut failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !d.Robot().GetStandardDigitalOut(3) {
		time.Sleep(time.Millisecond)
	}
	if !d.Robot().GetStandardDigitalOut(3) {
		t.Error("Expected digital output 3 set")
	}
}

// Scenario: transport dies mid-session; Reconnect restores streaming.
func TestDriverReconnect(t *testing.T) {
	mock := newMock(t)
	d := newTestDriver(t, mock, Options{})
	waitFrames(t, d, 1, time.Second)

	mock.DropConnection()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && d.IsConnected() {
		time.Sleep(time.Millisecond)
	}
	if d.IsConnected() {
		t.Fatal("Expected driver to observe transport loss")
	}

	if err := d.Reconnect(); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if !d.IsConnected() {
		t.Fatal("Expected connected after Reconnect")
	}

	// Snapshot updates resume within 500ms.
	before := d.Robot().FramesDecoded()
	deadline = time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && d.Robot().FramesDecoded() <= before {
		time.Sleep(time.Millisecond)
	}
	if d.Robot().FramesDecoded() <= before {
		t.Error("Expected snapshot updates to resume after Reconnect")
	}
}

// Scenario: async MoveJ starts, progress leaves idle, StopJ aborts, and
// progress returns to idle.
func TestDriverAsyncMoveAndStop(t *testing.T) {
	mock := newMock(t)
	mock.AsyncMotionTicks = 1 << 30 // runs until aborted
	mock.OnCommand = func(m *rtde.MockController, code int32, inputs map[string]interface{}) {
		if code == control.CMD_STOPJ {
			m.AbortAsync()
		}
	}
	d := newTestDriver(t, mock, Options{})

	if err := d.MoveJ(shared.Vector6{0, -1.57, 0, -1.57, 0, 0}, 1.05, 1.4, true); err != nil {
		t.Fatalf("async MoveJ failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && d.AsyncProgress() < 0 {
		time.Sleep(time.Millisecond)
	}
	if d.AsyncProgress() < 0 {
		t.Fatal("Expected async progress >= 0 within 1s")
	}

	if err := d.StopJ(2.0); err != nil {
		t.Fatalf("StopJ failed: %v", err)
	}
	if err := d.Control().WaitAsyncDone(2 * time.Second); err != nil {
		t.Errorf("Expected progress back to -1 within 2s: %v", err)
	}
}

// captureScriptPort stands in for the secondary interface, recording what
// the driver uploads.
func captureScriptPort(t *testing.T) (*net.TCPAddr, chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	scripts := make(chan string, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				data, _ := io.ReadAll(conn)
				scripts <- string(data)
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr), scripts
}

// Scenario: a five waypoint async path reports progress 0..4 monotonically
// and then returns to idle with the done marker set.
func TestDriverAsyncPathProgress(t *testing.T) {
	mock := newMock(t)
	scriptAddr, scripts := captureScriptPort(t)
	d := newTestDriver(t, mock, Options{ScriptPort: scriptAddr.Port})

	path := &control.Path{}
	for i := 0; i < 5; i++ {
		path.AddWaypoint(control.Waypoint{
			Move:         control.MOVE_TYPE_MOVEJ,
			Position:     control.POSITION_JOINTS,
			Target:       shared.Vector6{0, -1.57, float64(i) * 0.1, -1.57, 0, 0},
			Velocity:     1.05,
			Acceleration: 1.4,
		})
	}

	if err := d.MovePath(path, true); err != nil {
		t.Fatalf("MovePath failed: %v", err)
	}

	select {
	case script := <-scripts:
		if strings.Count(script, "movej(") != 5 {
			t.Errorf("Expected 5 movej lines in uploaded path, got:\n%s", script)
		}
	case <-time.After(time.Second):
		t.Fatal("Driver never uploaded the path script")
	}

	// Emulate the controller walking the waypoints.
	var seen []int
	go func() {
		for i := 0; i < 5; i++ {
			mock.SetOutput(rtde.OutputIntRegister(1), int32(i))
			time.Sleep(20 * time.Millisecond)
		}
		mock.SetOutput(rtde.OutputIntRegister(1), int32(-1))
		mock.SetOutput(rtde.OutputIntRegister(0), int32(shared.UR_CONTROLLER_DONE_WITH_CMD))
	}()

	deadline := time.Now().Add(2 * time.Second)
	last := -2
	for time.Now().Before(deadline) {
		p := d.AsyncProgress()
		if p != last && p >= 0 {
			if p < last {
				t.Fatalf("Progress went backwards: %v then %d", seen, p)
			}
			seen = append(seen, p)
			last = p
		}
		if len(seen) == 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if len(seen) != 5 {
		t.Fatalf("Expected 5 progress values, saw %v", seen)
	}

	if err := d.WaitForPathDone(2 * time.Second); err != nil {
		t.Fatalf("WaitForPathDone failed: %v", err)
	}
	if d.AsyncProgress() != -1 {
		t.Errorf("Expected idle progress after path, got %d", d.AsyncProgress())
	}
}

// Scenario: a default-window driver and an upper-window driver coexist
// without touching each other's registers.
func TestDriverUpperRangeCoexistence(t *testing.T) {
	lowerMock := newMock(t)
	d1 := newTestDriver(t, lowerMock, Options{})

	upperMock := newMock(t)
	upperMock.SetRegisterBase(control.UPPER_RANGE_BASE)
	d2 := newTestDriver(t, upperMock, Options{UseUpperRangeRegisters: true})

	if err := d1.MoveJ(shared.Vector6{}, 1.0, 1.0, false); err != nil {
		t.Fatalf("lower-window MoveJ failed: %v", err)
	}
	if err := d2.MoveJ(shared.Vector6{}, 1.0, 1.0, false); err != nil {
		t.Fatalf("upper-window MoveJ failed: %v", err)
	}

	// The upper-window command never wrote the lower window's registers.
	if got := upperMock.GetOutput(rtde.InputIntRegister(0)); got != nil {
		t.Errorf("Expected lower-window register untouched on upper mock, saw %v", got)
	}
}
