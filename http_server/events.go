package http_server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"urdriver/rtde"
	"urdriver/shared"
	"urdriver/shared/data_structures"
	"urdriver/shared/event_bus"
)

// eventBus is the slice of the bus the bridge consumes.
type eventBus interface {
	Subscribe(eventType string, subscriber *event_bus.Subscriber, handler event_bus.SubscriberHandler) *event_bus.Subscriber
	Unsubscribe(eventType string, subscriber *event_bus.Subscriber)
}

// STREAM_INTERVAL decimates the state stream: frames arrive at up to
// 500 Hz, websocket clients get at most one snapshot per interval.
const STREAM_INTERVAL = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The bridge is an operator tool on a trusted network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type EventsManager struct {
	bus     eventBus
	clients *data_structures.SafeMap[string, *eventsClient]
}

func NewEventsManager(bus eventBus) *EventsManager {
	return &EventsManager{
		bus:     bus,
		clients: data_structures.NewSafeMap[string, *eventsClient](),
	}
}

type eventsClient struct {
	id         string
	conn       *websocket.Conn
	subscriber *event_bus.Subscriber
	lostSub    *event_bus.Subscriber // the bus keeps one handler per subscriber
	manager    *EventsManager
	latest     chan *rtde.RobotState
	done       chan struct{}
	writeMu    sync.Mutex // gorilla allows one concurrent writer
}

func (c *eventsClient) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

type streamedEvent struct {
	Type  string                 `json:"type"`
	State map[string]interface{} `json:"state,omitempty"`
	Error string                 `json:"error,omitempty"`
}

// HandleWebsocket upgrades the connection and streams decimated state
// updates until the client goes away.
func (em *EventsManager) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	if em.bus == nil {
		http.Error(w, "no event bus attached", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		shared.DebugError(err)
		return
	}

	client := &eventsClient{
		id:      uuid.New().String(),
		conn:    conn,
		manager: em,
		latest:  make(chan *rtde.RobotState, 1),
		done:    make(chan struct{}),
	}
	em.clients.Set(client.id, client)

	client.subscriber = em.bus.Subscribe(event_bus.EVENT_STATE_UPDATE, nil, client.handleStateUpdate)
	client.lostSub = em.bus.Subscribe(event_bus.EVENT_SESSION_LOST, nil, client.handleSessionLost)

	go client.writeLoop()
	go client.readLoop()
}

func (c *eventsClient) cleanup() {
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.manager.bus.Unsubscribe(event_bus.EVENT_STATE_UPDATE, c.subscriber)
	c.manager.bus.Unsubscribe(event_bus.EVENT_SESSION_LOST, c.lostSub)
	c.manager.clients.Delete(c.id)
	shared.SafeClose(c.conn)
}

// handleStateUpdate keeps only the freshest snapshot; the write loop
// drains at the stream interval.
func (c *eventsClient) handleStateUpdate(event event_bus.Event) {
	state, ok := event.GetData().(*rtde.RobotState)
	if !ok {
		return
	}
	select {
	case c.latest <- state:
	default:
		// A snapshot is already queued; the newer one replaces it next
		// interval anyway since the snapshot pointer is shared.
	}
}

func (c *eventsClient) handleSessionLost(event event_bus.Event) {
	err, _ := event.GetData().(error)
	msg := streamedEvent{Type: event_bus.EVENT_SESSION_LOST}
	if err != nil {
		msg.Error = err.Error()
	}
	c.writeJSON(msg)
}

func (c *eventsClient) writeLoop() {
	defer c.cleanup()
	ticker := time.NewTicker(STREAM_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		select {
		case state := <-c.latest:
			msg := streamedEvent{
				Type:  event_bus.EVENT_STATE_UPDATE,
				State: state.Snapshot(),
			}
			if err := c.writeJSON(msg); err != nil {
				shared.DebugError(err)
				return
			}
		default:
			// No frame since the last tick; nothing to send.
		}
	}
}

// readLoop exists to observe the close handshake.
func (c *eventsClient) readLoop() {
	defer c.cleanup()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
