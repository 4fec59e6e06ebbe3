package rtde

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"urdriver/shared"
	"urdriver/shared/data_structures"
	"urdriver/shared/event_bus"
)

const (
	CONNECT_TIMEOUT = 2 * time.Second
	REPLY_TIMEOUT   = 2 * time.Second
)

// Session owns the RTDE socket and drives the protocol state machine:
//
//	DISCONNECTED --Connect--> CONNECTED --Start--> STARTED <--Start/Pause--> PAUSED
//
// Negotiation and recipe setup happen in CONNECTED. Exactly one output
// recipe per session; input recipes accumulate and are addressed by id.
// All writes go through a send mutex; the receive loop is the only reader
// of the socket once streaming starts.
type Session struct {
	host string
	port int

	conn   net.Conn
	sendMu sync.Mutex

	state             atomic.Int32 // shared.ConnectionState
	protocolVersion   int
	controllerVersion shared.ControllerVersion

	outputRecipe *Recipe
	inputRecipes *data_structures.SafeMap[uint8, *Recipe]

	snapshot *RobotState
	bus      event_bus.EventBus

	stopReceive atomic.Bool
	receiveDone chan struct{}
	ctrlReplies chan ctrlReply
	lastErr     atomic.Value // error
}

// ctrlReply carries a start/pause acknowledgement from the receive loop to
// the requesting goroutine once streaming owns the socket reads.
type ctrlReply struct {
	typ     byte
	payload []byte
}

// NewSession creates a disconnected session. The event bus may be nil when
// no attachments observe this session.
func NewSession(host string, port int, bus event_bus.EventBus) *Session {
	return &Session{
		host:            host,
		port:            port,
		protocolVersion: 1,
		inputRecipes:    data_structures.NewSafeMap[uint8, *Recipe](),
		snapshot:        NewRobotState(),
		bus:             bus,
		ctrlReplies:     make(chan ctrlReply, 4),
	}
}

// Connect opens the RTDE socket with NODELAY and SO_REUSEADDR. The session
// moves to CONNECTED; negotiation and setup follow.
func (s *Session) Connect() error {
	if s.State() != shared.DISCONNECTED {
		return fmt.Errorf("connect in state %s: %w", s.State(), shared.ErrSetupRejected)
	}

	dialer := net.Dialer{
		Timeout: CONNECT_TIMEOUT,
		Control: func(network, address string, c syscall.RawConn) error {
			var soErr error
			err := c.Control(func(fd uintptr) {
				soErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return soErr
		},
	}

	conn, err := dialer.Dial("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("dial %s:%d: %w", s.host, s.port, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			shared.DebugError(err)
		}
	}

	s.sendMu.Lock()
	s.conn = conn
	s.sendMu.Unlock()
	s.snapshot = NewRobotState()
	s.lastErr.Store(errBox{})
	s.setState(shared.CONNECTED)
	shared.DebugPrint("RTDE session connected to %s:%d", s.host, s.port)
	return nil
}

// NegotiateProtocolVersion attempts protocol version 2. The version pins to
// 2 when the controller accepts and falls back to 1 otherwise.
func (s *Session) NegotiateProtocolVersion() error {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, PROTOCOL_VERSION)
	reply, err := s.request(RTDE_REQUEST_PROTOCOL_VERSION, payload)
	if err != nil {
		return err
	}
	if len(reply) >= 1 && reply[0] == 1 {
		s.protocolVersion = 2
	} else {
		s.protocolVersion = 1
	}
	shared.DebugPrint("negotiated RTDE protocol version %d", s.protocolVersion)
	return nil
}

// FetchControllerVersion queries and caches the controller software version.
func (s *Session) FetchControllerVersion() (shared.ControllerVersion, error) {
	reply, err := s.request(RTDE_GET_URCONTROL_VERSION, nil)
	if err != nil {
		return shared.ControllerVersion{}, err
	}
	if len(reply) < 16 {
		return shared.ControllerVersion{}, fmt.Errorf("%w: version reply has %d bytes", shared.ErrVersionParse, len(reply))
	}
	s.controllerVersion = shared.ControllerVersion{
		Major:  binary.BigEndian.Uint32(reply[0:4]),
		Minor:  binary.BigEndian.Uint32(reply[4:8]),
		Bugfix: binary.BigEndian.Uint32(reply[8:12]),
		Build:  binary.BigEndian.Uint32(reply[12:16]),
	}
	shared.DebugPrint("controller version %s", s.controllerVersion)
	return s.controllerVersion, nil
}

// SendOutputSetup subscribes the session's single output recipe. Protocol
// version 2 carries the requested frequency; version 1 streams at the
// implicit 125 Hz.
func (s *Session) SendOutputSetup(names []string, frequency float64) error {
	var buf bytes.Buffer
	if s.protocolVersion == 2 {
		if err := binary.Write(&buf, binary.BigEndian, frequency); err != nil {
			return err
		}
	}
	buf.WriteString(strings.Join(names, ","))

	reply, err := s.request(RTDE_DATA_PACKAGE_OUTPUT, buf.Bytes())
	if err != nil {
		return err
	}
	if len(reply) < 1 {
		return fmt.Errorf("%w: empty output setup reply", shared.ErrSetupRejected)
	}

	recipe, err := buildRecipe(reply[0], names, string(reply[1:]))
	if err != nil {
		return fmt.Errorf("output setup: %w", err)
	}
	s.outputRecipe = recipe
	return nil
}

// SendInputSetup declares an input recipe and returns the controller
// assigned recipe id.
func (s *Session) SendInputSetup(names []string) (uint8, error) {
	reply, err := s.request(RTDE_DATA_PACKAGE_INPUT, []byte(strings.Join(names, ",")))
	if err != nil {
		return 0, err
	}
	if len(reply) < 1 {
		return 0, fmt.Errorf("%w: empty input setup reply", shared.ErrSetupRejected)
	}

	recipe, err := buildRecipe(reply[0], names, string(reply[1:]))
	if err != nil {
		return 0, fmt.Errorf("input setup: %w", err)
	}
	s.inputRecipes.Set(recipe.ID, recipe)
	return recipe.ID, nil
}

// Start begins output streaming and launches the receive loop.
func (s *Session) Start() error {
	if s.outputRecipe == nil {
		return fmt.Errorf("%w: start before output setup", shared.ErrSetupRejected)
	}
	reply, err := s.request(RTDE_CONTROL_PACKAGE_START, nil)
	if err != nil {
		return err
	}
	if len(reply) < 1 || reply[0] != 1 {
		return fmt.Errorf("%w: start declined", shared.ErrSetupRejected)
	}
	s.setState(shared.STARTED)
	s.startReceiveLoop()
	if s.bus != nil {
		s.bus.PublishData(event_bus.EVENT_SESSION_STARTED, s.controllerVersion)
	}
	return nil
}

// Pause halts output streaming. The receive loop stays parked on the socket
// and resumes when Start is called again.
func (s *Session) Pause() error {
	reply, err := s.request(RTDE_CONTROL_PACKAGE_PAUSE, nil)
	if err != nil {
		return err
	}
	if len(reply) < 1 || reply[0] != 1 {
		return fmt.Errorf("%w: pause declined", shared.ErrSetupRejected)
	}
	s.setState(shared.PAUSED)
	return nil
}

// Send encodes one input data package against a declared input recipe.
// Fields the values map does not cover are written as zero.
func (s *Session) Send(recipeID uint8, values map[string]interface{}) error {
	if s.State() == shared.DISCONNECTED {
		return shared.ErrNotConnected
	}
	recipe, ok := s.inputRecipes.Get(recipeID)
	if !ok {
		return fmt.Errorf("%w: input recipe %d not declared", shared.ErrSetupRejected, recipeID)
	}

	body, err := EncodeValues(recipe.Fields, values)
	if err != nil {
		return err
	}
	payload := append([]byte{recipe.ID}, body...)
	return s.writePacket(RTDE_DATA_PACKAGE_INPUT, payload)
}

// ReceiveData blocks for the next output data package and decodes it into
// the shared snapshot. Text messages are advisory and only logged;
// start/pause acknowledgements are routed to the goroutine awaiting them.
func (s *Session) ReceiveData() error {
	conn := s.currentConn()
	if conn == nil {
		return shared.ErrNotConnected
	}
	for {
		typ, payload, err := ReadPacket(conn)
		if err != nil {
			return err
		}

		switch typ {
		case RTDE_TEXT_MESSAGE:
			log.Printf("controller message: %s", textMessageBody(payload))
		case RTDE_CONTROL_PACKAGE_START, RTDE_CONTROL_PACKAGE_PAUSE:
			select {
			case s.ctrlReplies <- ctrlReply{typ: typ, payload: payload}:
			default:
			}
		case RTDE_DATA_PACKAGE_OUTPUT:
			if len(payload) < 1 {
				return fmt.Errorf("%w: data package without recipe id", shared.ErrCorruptFrame)
			}
			if s.outputRecipe == nil || payload[0] != s.outputRecipe.ID {
				return fmt.Errorf("%w: data package for unknown recipe %d", shared.ErrCorruptFrame, payload[0])
			}
			values, err := DecodeValues(s.outputRecipe.Fields, payload[1:])
			if err != nil {
				return err
			}
			s.snapshot.update(values)
			if s.bus != nil {
				s.bus.PublishData(event_bus.EVENT_STATE_UPDATE, s.snapshot)
			}
			return nil
		default:
			return fmt.Errorf("%w: type %d while streaming", shared.ErrUnknownPacket, typ)
		}
	}
}

// Disconnect stops the receive loop and closes the socket. Safe to call in
// any state.
func (s *Session) Disconnect() {
	s.stopReceiveLoop()
	s.sendMu.Lock()
	if s.conn != nil {
		shared.SafeClose(s.conn)
		s.conn = nil
	}
	s.sendMu.Unlock()
	s.setState(shared.DISCONNECTED)
	shared.DebugPrint("RTDE session disconnected")
}

func (s *Session) currentConn() net.Conn {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn
}

func (s *Session) IsConnected() bool {
	return s.State() != shared.DISCONNECTED
}

func (s *Session) State() shared.ConnectionState {
	return shared.ConnectionState(s.state.Load())
}

func (s *Session) setState(st shared.ConnectionState) {
	s.state.Store(int32(st))
}

func (s *Session) ProtocolVersion() int {
	return s.protocolVersion
}

func (s *Session) ControllerVersion() shared.ControllerVersion {
	return s.controllerVersion
}

func (s *Session) OutputRecipe() *Recipe {
	return s.outputRecipe
}

// Robot returns the shared state snapshot.
func (s *Session) Robot() *RobotState {
	return s.snapshot
}

// LastError returns the transport error that took the session down, or nil.
func (s *Session) LastError() error {
	v := s.lastErr.Load()
	if b, ok := v.(errBox); ok {
		return b.err
	}
	return nil
}

// errBox wraps the stored error so lastErr always holds one concrete type;
// atomic.Value requires a consistent concrete type and cannot hold nil.
type errBox struct{ err error }

func (s *Session) setLastError(err error) {
	if err == nil {
		s.lastErr.Store(errBox{})
		return
	}
	s.lastErr.Store(errBox{err: fmt.Errorf("%w: %v", shared.ErrConnectionLost, err)})
}

// request sends one packet and reads the matching reply, bounded by
// REPLY_TIMEOUT. Before streaming starts the reply is read directly off
// the socket; once the receive loop owns the reads, start/pause replies
// arrive through it instead.
func (s *Session) request(typ byte, payload []byte) ([]byte, error) {
	conn := s.currentConn()
	if conn == nil {
		return nil, shared.ErrNotConnected
	}

	if st := s.State(); st == shared.STARTED || st == shared.PAUSED {
		return s.requestViaReceiveLoop(typ, payload)
	}

	if err := s.writePacket(typ, payload); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(REPLY_TIMEOUT)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		replyType, replyPayload, err := ReadPacket(conn)
		if err != nil {
			return nil, err
		}
		if replyType == RTDE_TEXT_MESSAGE {
			log.Printf("controller message: %s", textMessageBody(replyPayload))
			continue
		}
		if replyType != typ {
			return nil, fmt.Errorf("%w: got type %d awaiting reply to %d", shared.ErrUnknownPacket, replyType, typ)
		}
		return replyPayload, nil
	}
}

func (s *Session) requestViaReceiveLoop(typ byte, payload []byte) ([]byte, error) {
	// Drop any stale acknowledgement from an earlier timed-out request.
	select {
	case <-s.ctrlReplies:
	default:
	}

	if err := s.writePacket(typ, payload); err != nil {
		return nil, err
	}

	select {
	case reply := <-s.ctrlReplies:
		if reply.typ != typ {
			return nil, fmt.Errorf("%w: got type %d awaiting reply to %d", shared.ErrUnknownPacket, reply.typ, typ)
		}
		return reply.payload, nil
	case <-time.After(REPLY_TIMEOUT):
		return nil, fmt.Errorf("%w: no reply to control packet %d", shared.ErrTimeout, typ)
	}
}

func (s *Session) writePacket(typ byte, payload []byte) error {
	packet, err := EncodePacket(typ, payload)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.conn == nil {
		return shared.ErrNotConnected
	}
	if _, err := s.conn.Write(packet); err != nil {
		return fmt.Errorf("write packet type %d: %w", typ, err)
	}
	return nil
}

// textMessageBody strips the leading level byte a version 2 controller
// prefixes to text messages.
func textMessageBody(payload []byte) string {
	if len(payload) > 1 && payload[0] < 4 {
		return string(payload[1:])
	}
	return string(payload)
}
