package rtde

import (
	"encoding/binary"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"urdriver/shared"
)

// MockController stubs the controller side of the RTDE protocol on a
// loopback listener. It answers negotiation and setup requests, streams
// output frames at a configurable tick, and emulates the control script's
// register mailbox: a nonzero command register is acknowledged with DONE
// after DoneDelayTicks ticks, and clearing it back to NOOP restores READY.
//
// Tests across the driver packages use this in place of a robot. It lives
// in a regular source file, not a _test.go file, so sibling packages can
// reach it.
type MockController struct {
	listener net.Listener

	// Configuration, set before Serve.
	AcceptV2         bool
	Version          shared.ControllerVersion
	DoneDelayTicks   int
	AsyncMotionTicks int
	TickInterval     time.Duration
	RegisterBase     int

	// OnCommand, when set, observes every nonzero command register write
	// after the default emulation ran. Tests use it to script progress
	// register sequences or return vectors.
	OnCommand func(m *MockController, code int32, inputs map[string]interface{})

	mu           sync.Mutex
	conn         net.Conn
	outputRecipe *Recipe
	outputFreq   float64
	inputRecipes map[uint8]*Recipe
	nextInputID  uint8
	outputs      map[string]interface{}
	streaming    bool
	pendingDone  int
	asyncLeft    int
	closed       chan struct{}
}

// mockFieldType resolves variable names the mock controller knows about.
// Anything absent maps to NOT_FOUND, like a real controller.
func mockFieldType(name string) (DataType, bool) {
	switch name {
	case "timestamp", "speed_scaling", "target_speed_fraction",
		"standard_analog_input0", "standard_analog_input1",
		"standard_analog_output0", "standard_analog_output1",
		"speed_slider_fraction", "standard_analog_output_0", "standard_analog_output_1":
		return TYPE_DOUBLE, true
	case "actual_q", "actual_qd", "target_q", "actual_TCP_pose", "actual_TCP_speed",
		"actual_TCP_force", "joint_temperatures", "actual_current", "external_force_torque":
		return TYPE_VECTOR6D, true
	case "robot_status_bits", "safety_status_bits", "runtime_state", "speed_slider_mask",
		"input_bit_registers0_to_31":
		return TYPE_UINT32, true
	case "robot_mode", "safety_mode":
		return TYPE_INT32, true
	case "actual_digital_input_bits", "actual_digital_output_bits":
		return TYPE_UINT64, true
	case "standard_digital_output_mask", "standard_digital_output",
		"tool_digital_output_mask", "tool_digital_output",
		"standard_analog_output_mask", "standard_analog_output_type":
		return TYPE_UINT8, true
	}
	if strings.HasPrefix(name, "input_int_register_") || strings.HasPrefix(name, "output_int_register_") {
		return TYPE_INT32, true
	}
	if strings.HasPrefix(name, "input_double_register_") || strings.HasPrefix(name, "output_double_register_") {
		return TYPE_DOUBLE, true
	}
	return 0, false
}

// NewMockController starts listening on an ephemeral loopback port. Call
// Serve to accept the session, and Close when done.
func NewMockController() (*MockController, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	m := &MockController{
		listener:         ln,
		AcceptV2:         true,
		Version:          shared.ControllerVersion{Major: 5, Minor: 10, Bugfix: 0, Build: 0},
		DoneDelayTicks:   2,
		AsyncMotionTicks: 10,
		TickInterval:     2 * time.Millisecond,
		inputRecipes:     make(map[uint8]*Recipe),
		nextInputID:      1,
		outputs:          make(map[string]interface{}),
		closed:           make(chan struct{}),
	}
	m.outputs["robot_status_bits"] = uint32(1<<STATUS_BIT_POWER_ON | 1<<STATUS_BIT_PROGRAM_RUNNING)
	m.SetRegisterBase(0)
	return m, nil
}

// SetRegisterBase moves the emulated control script's register window. The
// ready flag appears at output int register base+0 and the async progress
// counter at base+1.
func (m *MockController) SetRegisterBase(base int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RegisterBase = base
	m.outputs[OutputIntRegister(base)] = int32(shared.UR_CONTROLLER_RDY_FOR_CMD)
	m.outputs[OutputIntRegister(base+1)] = int32(-1)
}

// Host and Port address the mock for Session construction.
func (m *MockController) Host() string {
	return m.listener.Addr().(*net.TCPAddr).IP.String()
}

func (m *MockController) Port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

// SetOutput sets a streamed output variable for subsequent ticks.
func (m *MockController) SetOutput(name string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[name] = value
}

// GetOutput reads back a streamed output variable.
func (m *MockController) GetOutput(name string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputs[name]
}

// Serve accepts sessions and speaks the protocol until Close. Each new
// connection replaces the previous one, which lets tests exercise
// reconnects.
func (m *MockController) Serve() {
	go m.tickLoop()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		if m.conn != nil {
			m.conn.Close()
		}
		m.conn = conn
		m.streaming = false
		m.mu.Unlock()
		go m.serveConn(conn)
	}
}

// Close tears down the listener and any live session.
func (m *MockController) Close() {
	select {
	case <-m.closed:
		return
	default:
		close(m.closed)
	}
	m.listener.Close()
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.Unlock()
}

// AbortAsync ends the emulated async motion on the next tick, the way a
// stop command cuts a motion short.
func (m *MockController) AbortAsync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.asyncLeft > 0 {
		m.asyncLeft = 1
	}
}

// DropConnection closes the live session socket without closing the
// listener, simulating a transport failure the client can Reconnect from.
func (m *MockController) DropConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.streaming = false
	}
}

func (m *MockController) serveConn(conn net.Conn) {
	for {
		typ, payload, err := ReadPacket(conn)
		if err != nil {
			return
		}
		switch typ {
		case RTDE_REQUEST_PROTOCOL_VERSION:
			accepted := byte(0)
			if m.AcceptV2 && len(payload) == 2 && binary.BigEndian.Uint16(payload) == 2 {
				accepted = 1
			}
			m.reply(conn, typ, []byte{accepted})
		case RTDE_GET_URCONTROL_VERSION:
			body := make([]byte, 16)
			binary.BigEndian.PutUint32(body[0:4], m.Version.Major)
			binary.BigEndian.PutUint32(body[4:8], m.Version.Minor)
			binary.BigEndian.PutUint32(body[8:12], m.Version.Bugfix)
			binary.BigEndian.PutUint32(body[12:16], m.Version.Build)
			m.reply(conn, typ, body)
		case RTDE_DATA_PACKAGE_OUTPUT:
			m.handleOutputSetup(conn, payload)
		case RTDE_DATA_PACKAGE_INPUT:
			m.handleInput(conn, payload)
		case RTDE_CONTROL_PACKAGE_START:
			m.mu.Lock()
			m.streaming = m.outputRecipe != nil
			ok := m.streaming
			m.mu.Unlock()
			accepted := byte(0)
			if ok {
				accepted = 1
			}
			m.reply(conn, typ, []byte{accepted})
		case RTDE_CONTROL_PACKAGE_PAUSE:
			m.mu.Lock()
			m.streaming = false
			m.mu.Unlock()
			m.reply(conn, typ, []byte{1})
		default:
			// Unknown request types are dropped, like a real controller.
		}
	}
}

func (m *MockController) reply(conn net.Conn, typ byte, payload []byte) {
	packet, err := EncodePacket(typ, payload)
	if err != nil {
		return
	}
	conn.Write(packet)
}

// handleOutputSetup answers an output recipe request. Version 2 requests
// carry a leading f64 frequency.
func (m *MockController) handleOutputSetup(conn net.Conn, payload []byte) {
	// Version 2 requests lead with an f64 frequency. Variable name lists
	// never start with bytes that decode to a sane rate, so sniffing the
	// prefix is good enough for a mock.
	names := payload
	if len(payload) > 8 {
		freq := math.Float64frombits(binary.BigEndian.Uint64(payload[0:8]))
		if freq >= 1 && freq <= 500 {
			m.mu.Lock()
			m.outputFreq = freq
			m.mu.Unlock()
			names = payload[8:]
		}
	}

	nameList := strings.Split(string(names), ",")
	fields := make([]Field, len(nameList))
	types := make([]string, len(nameList))
	for i, name := range nameList {
		t, ok := mockFieldType(name)
		if !ok {
			types[i] = "NOT_FOUND"
			continue
		}
		fields[i] = Field{Name: name, Type: t}
		types[i] = t.String()
	}

	m.mu.Lock()
	m.outputRecipe = &Recipe{ID: 1, Fields: fields}
	m.mu.Unlock()

	m.reply(conn, RTDE_DATA_PACKAGE_OUTPUT, append([]byte{1}, []byte(strings.Join(types, ","))...))
}

// handleInput answers an input recipe setup (ASCII names) or applies an
// input data package (leading known recipe id).
func (m *MockController) handleInput(conn net.Conn, payload []byte) {
	if len(payload) > 0 {
		m.mu.Lock()
		recipe, isData := m.inputRecipes[payload[0]]
		m.mu.Unlock()
		if isData {
			values, err := DecodeValues(recipe.Fields, payload[1:])
			if err == nil {
				m.applyInput(values)
			}
			return
		}
	}

	nameList := strings.Split(string(payload), ",")
	fields := make([]Field, len(nameList))
	types := make([]string, len(nameList))
	for i, name := range nameList {
		t, ok := mockFieldType(name)
		if !ok {
			types[i] = "NOT_FOUND"
			continue
		}
		fields[i] = Field{Name: name, Type: t}
		types[i] = t.String()
	}

	m.mu.Lock()
	id := m.nextInputID
	m.nextInputID++
	m.inputRecipes[id] = &Recipe{ID: id, Fields: fields}
	m.mu.Unlock()

	m.reply(conn, RTDE_DATA_PACKAGE_INPUT, append([]byte{id}, []byte(strings.Join(types, ","))...))
}

// applyInput emulates the controller applying an input frame on the next
// tick: I/O mask writes update the output bit fields, and command register
// writes drive the done/ready handshake the control script implements.
func (m *MockController) applyInput(values map[string]interface{}) {
	m.mu.Lock()

	if mask, ok := values["standard_digital_output_mask"].(uint8); ok && mask != 0 {
		level, _ := values["standard_digital_output"].(uint8)
		bits, _ := m.outputs["actual_digital_output_bits"].(uint64)
		bits = (bits &^ uint64(mask)) | uint64(level&mask)
		m.outputs["actual_digital_output_bits"] = bits
	}
	if mask, ok := values["tool_digital_output_mask"].(uint8); ok && mask != 0 {
		level, _ := values["tool_digital_output"].(uint8)
		bits, _ := m.outputs["actual_digital_output_bits"].(uint64)
		// Tool outputs occupy bits 16 and 17 of the combined bit field.
		bits = (bits &^ (uint64(mask) << 16)) | (uint64(level&mask) << 16)
		m.outputs["actual_digital_output_bits"] = bits
	}
	if mask, ok := values["speed_slider_mask"].(uint32); ok && mask&1 != 0 {
		if frac, ok := values["speed_slider_fraction"].(float64); ok {
			m.outputs["target_speed_fraction"] = frac
		}
	}
	if mask, ok := values["standard_analog_output_mask"].(uint8); ok {
		if mask&1 != 0 {
			m.outputs["standard_analog_output0"], _ = values["standard_analog_output_0"].(float64)
		}
		if mask&2 != 0 {
			m.outputs["standard_analog_output1"], _ = values["standard_analog_output_1"].(float64)
		}
	}

	// Mirror plain register writes so tests can observe them.
	for name, v := range values {
		if strings.HasPrefix(name, "input_") {
			m.outputs[name] = v
		}
	}

	var pendingCode int32
	if code, ok := values[InputIntRegister(m.RegisterBase)].(int32); ok {
		if code == 0 {
			m.outputs[OutputIntRegister(m.RegisterBase)] = int32(shared.UR_CONTROLLER_RDY_FOR_CMD)
			m.pendingDone = 0
		} else {
			m.pendingDone = m.DoneDelayTicks
			if m.pendingDone < 1 {
				m.pendingDone = 1
			}
			// Async motions acknowledge at start; the progress register
			// stays live until the emulated motion runs out.
			if async, _ := values[InputIntRegister(m.RegisterBase+1)].(int32); async == 1 {
				m.outputs[OutputIntRegister(m.RegisterBase+1)] = int32(0)
				m.asyncLeft = m.AsyncMotionTicks
			}
			pendingCode = code
		}
	}
	m.mu.Unlock()

	if pendingCode != 0 && m.OnCommand != nil {
		m.OnCommand(m, pendingCode, values)
	}
}

// tickLoop advances emulated time: pending commands complete, and one
// output frame is streamed per tick while streaming is on.
func (m *MockController) tickLoop() {
	ticker := time.NewTicker(m.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closed:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.pendingDone > 0 {
			m.pendingDone--
			if m.pendingDone == 0 {
				m.outputs[OutputIntRegister(m.RegisterBase)] = int32(shared.UR_CONTROLLER_DONE_WITH_CMD)
			}
		}
		if m.asyncLeft > 0 {
			m.asyncLeft--
			if m.asyncLeft == 0 {
				m.outputs[OutputIntRegister(m.RegisterBase+1)] = int32(-1)
			}
		}

		if !m.streaming || m.conn == nil || m.outputRecipe == nil {
			m.mu.Unlock()
			continue
		}
		if ts, ok := m.outputs["timestamp"].(float64); ok {
			m.outputs["timestamp"] = ts + m.TickInterval.Seconds()
		} else {
			m.outputs["timestamp"] = m.TickInterval.Seconds()
		}
		body, err := EncodeValues(m.outputRecipe.Fields, m.outputs)
		conn := m.conn
		recipeID := m.outputRecipe.ID
		m.mu.Unlock()
		if err != nil {
			continue
		}
		packet, err := EncodePacket(RTDE_DATA_PACKAGE_OUTPUT, append([]byte{recipeID}, body...))
		if err != nil {
			continue
		}
		conn.Write(packet)
	}
}

