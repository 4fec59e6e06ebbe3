// Package database persists robot telemetry and a command audit trail to
// MongoDB. The recorder is an optional attachment: it observes the event
// bus, samples state updates down to a storable rate, and never touches
// the robot.
package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"urdriver/rtde"
	"urdriver/shared"
	"urdriver/shared/event_bus"
)

const (
	TELEMETRY_COLLECTION = "telemetry"
	COMMANDS_COLLECTION  = "commands"

	// DEFAULT_SAMPLE_INTERVAL thins the stream: the controller emits up
	// to 500 frames/s, the recorder stores at most one per interval.
	DEFAULT_SAMPLE_INTERVAL = time.Second
)

// Recorder manages the MongoDB connection and the bus subscriptions.
//
// Environment Variables:
//   - MONGODB_URI: MongoDB connection string (required)
//   - MONGODB_DATABASE: database name (required)
//
// Usage:
//
//	rec := database.NewRecorder(sessionID)
//	if err := rec.Start(ctx); err != nil { ... }
//	rec.Attach(bus)
//	defer rec.Stop(ctx)
type Recorder struct {
	sessionID string
	client    *mongo.Client
	database  *mongo.Database

	sampleInterval time.Duration
	sampleMu       sync.Mutex // handlers run on per-delivery goroutines
	lastSample     time.Time

	subscribers []*event_bus.Subscriber
	bus         event_bus.EventBus

	// sink receives every document the handlers produce; the default
	// writes to MongoDB. Tests swap it to capture documents.
	sink func(collection string, doc map[string]interface{})
}

func NewRecorder(sessionID string) *Recorder {
	r := &Recorder{
		sessionID:      sessionID,
		sampleInterval: DEFAULT_SAMPLE_INTERVAL,
	}
	r.sink = r.insert
	return r
}

// SetSampleInterval tunes telemetry thinning. Call before Attach.
func (r *Recorder) SetSampleInterval(interval time.Duration) {
	if interval > 0 {
		r.sampleInterval = interval
	}
}

// Start establishes the persistent MongoDB connection with the pool sizing
// used across the driver.
func (r *Recorder) Start(ctx context.Context) error {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		return fmt.Errorf("MONGODB_URI environment variable is not set")
	}
	dbName := os.Getenv("MONGODB_DATABASE")
	if dbName == "" {
		return fmt.Errorf("MONGODB_DATABASE environment variable is not set")
	}

	shared.DebugPrint("Connecting to MongoDB at: %s", mongoURI)

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().
		ApplyURI(mongoURI).
		SetServerAPIOptions(serverAPI).
		SetMinPoolSize(shared.MONGODB_MIN_POOL_SIZE).
		SetMaxPoolSize(shared.MONGODB_MAX_POOL_SIZE)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping MongoDB: %w", err)
	}

	r.client = client
	r.database = client.Database(dbName)
	return nil
}

// Stop detaches from the bus and closes the MongoDB connection.
func (r *Recorder) Stop(ctx context.Context) error {
	r.Detach()
	if r.client == nil {
		return nil
	}
	err := r.client.Disconnect(ctx)
	r.client = nil
	r.database = nil
	return err
}

// Attach subscribes the recorder to a driver's event bus.
func (r *Recorder) Attach(bus event_bus.EventBus) {
	r.bus = bus
	r.subscribers = append(r.subscribers,
		bus.Subscribe(event_bus.EVENT_STATE_UPDATE, nil, r.handleStateUpdate),
		bus.Subscribe(event_bus.EVENT_COMMAND_SENT, nil, r.handleCommandSent),
		bus.Subscribe(event_bus.EVENT_COMMAND_DONE, nil, r.handleCommandDone),
		bus.Subscribe(event_bus.EVENT_SESSION_LOST, nil, r.handleSessionLost),
	)
}

// Detach removes the bus subscriptions.
func (r *Recorder) Detach() {
	if r.bus == nil {
		return
	}
	types := []string{
		event_bus.EVENT_STATE_UPDATE,
		event_bus.EVENT_COMMAND_SENT,
		event_bus.EVENT_COMMAND_DONE,
		event_bus.EVENT_SESSION_LOST,
	}
	for i, sub := range r.subscribers {
		if i < len(types) {
			r.bus.Unsubscribe(types[i], sub)
		}
	}
	r.subscribers = nil
	r.bus = nil
}

func (r *Recorder) handleStateUpdate(event event_bus.Event) {
	state, ok := event.GetData().(*rtde.RobotState)
	if !ok {
		return
	}
	now := time.Now()
	r.sampleMu.Lock()
	if now.Sub(r.lastSample) < r.sampleInterval {
		r.sampleMu.Unlock()
		return
	}
	r.lastSample = now
	r.sampleMu.Unlock()

	doc := map[string]interface{}{
		"session_id":      r.sessionID,
		"recorded_at":     now,
		"robot_timestamp": state.Timestamp(),
		"actual_q":        state.ActualQ(),
		"actual_tcp_pose": state.ActualTCPPose(),
		"status_bits":     state.RobotStatusBits(),
		"safety_bits":     state.SafetyStatusBits(),
		"speed_scaling":   state.SpeedScaling(),
		"digital_out":     state.ActualDigitalOutputBits(),
	}
	r.sink(TELEMETRY_COLLECTION, doc)
}

func (r *Recorder) handleCommandSent(event event_bus.Event) {
	r.sink(COMMANDS_COLLECTION, map[string]interface{}{
		"session_id": r.sessionID,
		"at":         time.Now(),
		"event":      "sent",
		"code":       event.GetData(),
	})
}

func (r *Recorder) handleCommandDone(event event_bus.Event) {
	doc := map[string]interface{}{
		"session_id": r.sessionID,
		"at":         time.Now(),
		"event":      "done",
	}
	if latency, ok := event.GetData().(time.Duration); ok {
		doc["latency_ms"] = latency.Milliseconds()
	}
	r.sink(COMMANDS_COLLECTION, doc)
}

func (r *Recorder) handleSessionLost(event event_bus.Event) {
	doc := map[string]interface{}{
		"session_id": r.sessionID,
		"at":         time.Now(),
		"event":      "session_lost",
	}
	if err, ok := event.GetData().(error); ok {
		doc["error"] = err.Error()
	}
	r.sink(COMMANDS_COLLECTION, doc)
}

func (r *Recorder) insert(collection string, doc map[string]interface{}) {
	if r.database == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := r.database.Collection(collection).InsertOne(ctx, doc); err != nil {
		shared.DebugError(err)
	}
}
