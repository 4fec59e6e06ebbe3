package database

import (
	"errors"
	"sync"
	"testing"
	"time"

	"urdriver/rtde"
	"urdriver/shared"
	"urdriver/shared/event_bus"
)

// docCapture stands in for the Mongo sink.
type docCapture struct {
	mu   sync.Mutex
	docs []capturedDoc
}

type capturedDoc struct {
	collection string
	doc        map[string]interface{}
}

func (c *docCapture) sink(collection string, doc map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, capturedDoc{collection: collection, doc: doc})
}

func (c *docCapture) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func (c *docCapture) at(i int) capturedDoc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs[i]
}

func newCapturedRecorder(sessionID string) (*Recorder, *docCapture) {
	rec := NewRecorder(sessionID)
	capture := &docCapture{}
	rec.sink = capture.sink
	return rec, capture
}

// populatedState streams one frame through a mock controller so the
// snapshot carries real decoded values.
func populatedState(t *testing.T) *rtde.RobotState {
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

	names := []string{
		"timestamp", "robot_status_bits", "safety_status_bits",
		"actual_q", "actual_TCP_pose", "speed_scaling",
		"actual_digital_output_bits",
	}
	if err := sess.SendOutputSetup(names, 500.0); err != nil {
		t.Fatalf("output setup failed: %v", err)
	}
	mock.SetOutput("actual_q", shared.Vector6{0, -1.57, 0, -1.57, 0, 0})
	mock.SetOutput("speed_scaling", 0.8)
	if err := sess.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sess.Robot().FramesDecoded() == 0 {
		time.Sleep(time.Millisecond)
	}
	if sess.Robot().FramesDecoded() == 0 {
		t.Fatal("Mock never streamed a frame")
	}
	return sess.Robot()
}

func TestRecorderTelemetryDocumentShape(t *testing.T) {
	state := populatedState(t)
	rec, capture := newCapturedRecorder("session-1")

	rec.handleStateUpdate(event_bus.NewDefaultEvent(event_bus.EVENT_STATE_UPDATE, state))

	if capture.len() != 1 {
		t.Fatalf("Expected one telemetry document, got %d", capture.len())
	}
	got := capture.at(0)
	if got.collection != TELEMETRY_COLLECTION {
		t.Errorf("Expected collection %q, got %q", TELEMETRY_COLLECTION, got.collection)
	}
	if got.doc["session_id"] != "session-1" {
		t.Errorf("Expected session id in document, got %v", got.doc["session_id"])
	}
	for _, key := range []string{
		"recorded_at", "robot_timestamp", "actual_q", "actual_tcp_pose",
		"status_bits", "safety_bits", "speed_scaling", "digital_out",
	} {
		if _, ok := got.doc[key]; !ok {
			t.Errorf("Expected key %q in telemetry document", key)
		}
	}
	if q, ok := got.doc["actual_q"].(shared.Vector6); !ok || q[1] != -1.57 {
		t.Errorf("Expected decoded actual_q in document, got %v", got.doc["actual_q"])
	}
	if got.doc["speed_scaling"] != 0.8 {
		t.Errorf("Expected speed_scaling 0.8, got %v", got.doc["speed_scaling"])
	}
}

func TestRecorderStateUpdateIgnoresForeignData(t *testing.T) {
	rec, capture := newCapturedRecorder("session-1")

	rec.handleStateUpdate(event_bus.NewDefaultEvent(event_bus.EVENT_STATE_UPDATE, "not a state"))

	if capture.len() != 0 {
		t.Errorf("Expected no document for non-state payload, got %d", capture.len())
	}
}

// The sample interval thins the stream: a burst of updates stores one
// document, and the next lands only after the interval passes.
func TestRecorderSampleThrottle(t *testing.T) {
	state := populatedState(t)
	rec, capture := newCapturedRecorder("session-1")
	rec.SetSampleInterval(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		rec.handleStateUpdate(event_bus.NewDefaultEvent(event_bus.EVENT_STATE_UPDATE, state))
	}
	if capture.len() != 1 {
		t.Fatalf("Expected burst throttled to one document, got %d", capture.len())
	}

	time.Sleep(60 * time.Millisecond)
	rec.handleStateUpdate(event_bus.NewDefaultEvent(event_bus.EVENT_STATE_UPDATE, state))
	if capture.len() != 2 {
		t.Errorf("Expected second document after the interval, got %d", capture.len())
	}
}

func TestRecorderCommandAudit(t *testing.T) {
	rec, capture := newCapturedRecorder("session-2")

	rec.handleCommandSent(event_bus.NewDefaultEvent(event_bus.EVENT_COMMAND_SENT, 1))
	rec.handleCommandDone(event_bus.NewDefaultEvent(event_bus.EVENT_COMMAND_DONE, 1500*time.Millisecond))
	rec.handleCommandDone(event_bus.NewDefaultEvent(event_bus.EVENT_COMMAND_DONE, "no duration"))
	rec.handleSessionLost(event_bus.NewDefaultEvent(event_bus.EVENT_SESSION_LOST, errors.New("socket gone")))

	if capture.len() != 4 {
		t.Fatalf("Expected 4 audit documents, got %d", capture.len())
	}

	sent := capture.at(0)
	if sent.collection != COMMANDS_COLLECTION || sent.doc["event"] != "sent" || sent.doc["code"] != 1 {
		t.Errorf("Unexpected sent document: %v", sent.doc)
	}

	done := capture.at(1)
	if done.doc["event"] != "done" {
		t.Errorf("Expected done event, got %v", done.doc["event"])
	}
	if done.doc["latency_ms"] != int64(1500) {
		t.Errorf("Expected latency_ms 1500, got %v", done.doc["latency_ms"])
	}

	// A done event without a duration payload carries no latency field.
	if _, ok := capture.at(2).doc["latency_ms"]; ok {
		t.Error("Expected no latency_ms for non-duration payload")
	}

	lost := capture.at(3)
	if lost.doc["event"] != "session_lost" || lost.doc["error"] != "socket gone" {
		t.Errorf("Unexpected session_lost document: %v", lost.doc)
	}
}

func TestRecorderAttachDetach(t *testing.T) {
	rec, capture := newCapturedRecorder("session-3")
	bus := event_bus.NewEventBus()

	rec.Attach(bus)
	bus.PublishData(event_bus.EVENT_COMMAND_SENT, 7)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && capture.len() == 0 {
		time.Sleep(time.Millisecond)
	}
	if capture.len() != 1 {
		t.Fatalf("Expected one document via the bus, got %d", capture.len())
	}

	rec.Detach()
	bus.PublishData(event_bus.EVENT_COMMAND_SENT, 8)
	time.Sleep(20 * time.Millisecond)
	if capture.len() != 1 {
		t.Errorf("Expected no documents after Detach, got %d", capture.len())
	}
}
