package control

import (
	"errors"
	"math"
	"testing"
	"time"

	"urdriver/rtde"
	"urdriver/shared"
)

func newTestChannel(t *testing.T) (*rtde.MockController, *rtde.Session, *Channel) {
	t.Helper()
	mock, err := rtde.NewMockController()
	if err != nil {
		t.Fatalf("mock listen failed: %v", err)
	}
	go mock.Serve()
	t.Cleanup(mock.Close)

	sess := rtde.NewSession(mock.Host(), mock.Port(), nil)
	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(sess.Disconnect)

	if err := sess.NegotiateProtocolVersion(); err != nil {
		t.Fatalf("negotiate failed: %v", err)
	}
	if _, err := sess.FetchControllerVersion(); err != nil {
		t.Fatalf("version fetch failed: %v", err)
	}

	ch := NewChannel(sess, false, nil)
	names := append([]string{"timestamp", "robot_status_bits", "safety_status_bits"}, ch.OutputNames()...)
	if err := sess.SendOutputSetup(names, 500.0); err != nil {
		t.Fatalf("output setup failed: %v", err)
	}
	if err := ch.DeclareRecipes(); err != nil {
		t.Fatalf("recipe declare failed: %v", err)
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := ch.WaitForReady(shared.SETUP_TIMEOUT); err != nil {
		t.Fatalf("script never reported ready: %v", err)
	}
	return mock, sess, ch
}

// Scenario: synchronous MoveJ emits the command, waits for DONE, and
// returns cleanly.
func TestChannelMoveJSynchronous(t *testing.T) {
	mock, _, ch := newTestChannel(t)

	var observed int32
	mock.OnCommand = func(m *rtde.MockController, code int32, inputs map[string]interface{}) {
		observed = code
	}

	err := ch.MoveJ(shared.Vector6{0, -1.57, 0, -1.57, 0, 0}, 1.05, 1.4, false)
	if err != nil {
		t.Fatalf("MoveJ failed: %v", err)
	}
	if observed != CMD_MOVEJ {
		t.Errorf("Expected controller to observe code %d, got %d", CMD_MOVEJ, observed)
	}
	// The clear frame restores READY for the next command.
	if err := ch.WaitForReady(time.Second); err != nil {
		t.Errorf("Expected READY after clear: %v", err)
	}
}

func TestChannelValidationEmitsNoFrame(t *testing.T) {
	mock, _, ch := newTestChannel(t)

	cases := []error{
		ch.MoveJ(shared.Vector6{}, 5.0, 1.4, false),             // joint velocity over 3.14
		ch.MoveJ(shared.Vector6{}, 1.0, 50.0, false),            // joint acceleration over 40
		ch.MoveL(shared.Vector6{}, 4.0, 1.0, false),             // tool velocity over 3.0
		ch.ServoJ(shared.Vector6{}, 1.0, 1.0, 0.002, 0.01, 300), // lookahead under 0.03
		ch.ServoJ(shared.Vector6{}, 1.0, 1.0, 0.002, 0.1, 50),   // gain under 100
		ch.MoveP(shared.Vector6{}, 1.0, 1.0, 3.0, false),        // blend over 2.0
	}
	for i, err := range cases {
		if !errors.Is(err, shared.ErrOutOfRange) {
			t.Errorf("case %d: expected ErrOutOfRange, got %v", i, err)
		}
	}

	nan := shared.Vector6{0, 0, math.NaN(), 0, 0, 0}
	if err := ch.MoveJ(nan, 1.0, 1.0, false); !errors.Is(err, shared.ErrOutOfRange) {
		t.Errorf("Expected NaN rejection, got %v", err)
	}

	if got := mock.GetOutput(rtde.InputIntRegister(0)); got != nil {
		t.Errorf("Expected no frame emitted for rejected commands, controller saw %v", got)
	}
}

func TestChannelCommandTimeout(t *testing.T) {
	mock, _, ch := newTestChannel(t)
	mock.DoneDelayTicks = 1 << 30 // never acknowledges

	_, err := ch.Execute(Command{Code: CMD_MOVEJ, Timeout: 100 * time.Millisecond})
	if !errors.Is(err, shared.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

// Async commands acknowledge at motion start; progress runs -1 -> >=0 ->
// -1 exactly once.
func TestChannelAsyncProgressLifecycle(t *testing.T) {
	mock, _, ch := newTestChannel(t)
	mock.AsyncMotionTicks = 100 // ~200ms of emulated motion

	if ch.AsyncProgress() != -1 {
		t.Fatalf("Expected idle progress -1, got %d", ch.AsyncProgress())
	}

	done := make(chan error, 1)
	go func() {
		_, err := ch.Execute(Command{Code: CMD_MOVEJ, Async: true, Timeout: 5 * time.Second})
		done <- err
	}()

	// Progress leaves idle within a second of the async start.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && ch.AsyncProgress() < 0 {
		time.Sleep(time.Millisecond)
	}
	if ch.AsyncProgress() < 0 {
		t.Fatal("Expected async progress >= 0 while motion in flight")
	}

	if err := <-done; err != nil {
		t.Fatalf("async Execute failed: %v", err)
	}
	if err := ch.WaitAsyncDone(time.Second); err != nil {
		t.Errorf("Expected progress back to -1: %v", err)
	}
}

func TestChannelResultRegisters(t *testing.T) {
	mock, _, ch := newTestChannel(t)

	want := shared.Vector6{0.1, -0.2, 0.3, -0.4, 0.5, -0.6}
	mock.OnCommand = func(m *rtde.MockController, code int32, inputs map[string]interface{}) {
		if code != CMD_GET_INVERSE_KIN {
			return
		}
		for i, v := range want {
			m.SetOutput(rtde.OutputDoubleRegister(i), v)
		}
	}

	got, err := ch.GetInverseKinematics(shared.Vector6{0.3, -0.2, 0.4, 0, 3.14, 0}, shared.Vector6{})
	if err != nil {
		t.Fatalf("GetInverseKinematics failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// A transport failure mid-command triggers exactly one reconnect attempt.
func TestChannelRetriesOnceAfterReconnect(t *testing.T) {
	mock, sess, ch := newTestChannel(t)

	reconnects := 0
	ch.SetReconnect(func() error {
		reconnects++
		sess.Disconnect()
		if err := sess.Connect(); err != nil {
			return err
		}
		if err := sess.NegotiateProtocolVersion(); err != nil {
			return err
		}
		names := append([]string{"timestamp", "robot_status_bits", "safety_status_bits"}, ch.OutputNames()...)
		if err := sess.SendOutputSetup(names, 500.0); err != nil {
			return err
		}
		if err := ch.DeclareRecipes(); err != nil {
			return err
		}
		if err := sess.Start(); err != nil {
			return err
		}
		return ch.WaitForReady(shared.SETUP_TIMEOUT)
	})

	mock.DropConnection()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sess.IsConnected() {
		time.Sleep(time.Millisecond)
	}

	if err := ch.MoveJ(shared.Vector6{0, -1, 0, -1, 0, 0}, 1.0, 1.0, false); err != nil {
		t.Fatalf("Expected command to succeed after reconnect, got %v", err)
	}
	if reconnects != 1 {
		t.Errorf("Expected exactly one reconnect, got %d", reconnects)
	}
}

func TestChannelUpperRangeBase(t *testing.T) {
	mock, err := rtde.NewMockController()
	if err != nil {
		t.Fatalf("mock listen failed: %v", err)
	}
	mock.SetRegisterBase(UPPER_RANGE_BASE)
	go mock.Serve()
	t.Cleanup(mock.Close)

	sess := rtde.NewSession(mock.Host(), mock.Port(), nil)
	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(sess.Disconnect)
	if err := sess.NegotiateProtocolVersion(); err != nil {
		t.Fatalf("negotiate failed: %v", err)
	}

	ch := NewChannel(sess, true, nil)
	if ch.Base() != UPPER_RANGE_BASE {
		t.Fatalf("Expected base %d, got %d", UPPER_RANGE_BASE, ch.Base())
	}
	names := append([]string{"timestamp", "robot_status_bits", "safety_status_bits"}, ch.OutputNames()...)
	if err := sess.SendOutputSetup(names, 500.0); err != nil {
		t.Fatalf("output setup failed: %v", err)
	}
	if err := ch.DeclareRecipes(); err != nil {
		t.Fatalf("recipe declare failed: %v", err)
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := ch.WaitForReady(shared.SETUP_TIMEOUT); err != nil {
		t.Fatalf("script never reported ready: %v", err)
	}

	if err := ch.MoveJ(shared.Vector6{}, 1.0, 1.0, false); err != nil {
		t.Fatalf("MoveJ on upper range failed: %v", err)
	}
}
