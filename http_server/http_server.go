// Package http_server is an optional monitoring bridge over a robot
// driver: REST endpoints for the live state snapshot and basic I/O writes,
// plus a websocket stream of state updates. The bridge only reads the
// robot except for the explicit I/O endpoints, which go through the I/O
// facade.
package http_server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"urdriver/driver"
	"urdriver/shared"
)

type HTTPServer struct {
	drv    *driver.RobotDriver
	router *chi.Mux
	srv    *http.Server
	events *EventsManager
}

// Start serves the bridge until the context is cancelled. The port comes
// from HTTP_PORT.
func Start(ctx context.Context, drv *driver.RobotDriver, bus eventBus) error {
	port := os.Getenv("HTTP_PORT")
	if port == "" {
		log.Fatal("HTTP_PORT environment variable is not set")
	}

	r := chi.NewRouter()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: r,
	}

	s := &HTTPServer{
		drv:    drv,
		router: r,
		srv:    srv,
		events: NewEventsManager(bus),
	}

	serverErr := make(chan error, 1)
	go func() {
		s.router.Get("/", s.GETHandleHome)
		s.router.Route("/robot", s.RobotRoutes)
		s.router.Get("/events", s.events.HandleWebsocket)

		log.Println("Starting HTTP bridge on", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("error starting HTTP bridge: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Println("Shutting down HTTP bridge...")
		if err := s.srv.Shutdown(context.Background()); err != nil {
			log.Println("Error shutting down HTTP bridge:", err)
			return fmt.Errorf("error shutting down HTTP bridge: %w", err)
		}
	}
	return nil
}

func (s *HTTPServer) RobotRoutes(r chi.Router) {
	r.Get("/", s.GETHandleRobot)
	r.Get("/state", s.GETHandleState)
	r.Post("/io/digital", s.POSTHandleDigitalOut)
	r.Post("/io/speed_slider", s.POSTHandleSpeedSlider)
}

func (s *HTTPServer) GETHandleHome(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "urdriver monitoring bridge")
	fmt.Fprintf(w, "Session: %s\n", s.drv.SessionID)
	fmt.Fprintf(w, "Connected: %v\n", s.drv.IsConnected())
}

// GETHandleRobot summarizes the session.
func (s *HTTPServer) GETHandleRobot(w http.ResponseWriter, r *http.Request) {
	robot := s.drv.Robot()
	writeJSON(w, map[string]interface{}{
		"session_id":         s.drv.SessionID,
		"connected":          s.drv.IsConnected(),
		"controller_version": s.drv.ControllerVersion(),
		"program_running":    robot.IsProgramRunning(),
		"protective_stopped": robot.IsProtectiveStopped(),
		"frames_decoded":     robot.FramesDecoded(),
		"async_progress":     s.drv.AsyncProgress(),
	})
}

// GETHandleState dumps the full snapshot, keyed by RTDE variable name.
func (s *HTTPServer) GETHandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.drv.Robot().Snapshot())
}

type digitalOutRequest struct {
	ID    int  `json:"id"`
	Level bool `json:"level"`
}

func (s *HTTPServer) POSTHandleDigitalOut(w http.ResponseWriter, r *http.Request) {
	var req digitalOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.drv.SetStandardDigitalOut(req.ID, req.Level); err != nil {
		shared.DebugError(err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true})
}

type speedSliderRequest struct {
	Fraction float64 `json:"fraction"`
}

func (s *HTTPServer) POSTHandleSpeedSlider(w http.ResponseWriter, r *http.Request) {
	var req speedSliderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.drv.SetSpeedSlider(req.Fraction); err != nil {
		shared.DebugError(err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		shared.DebugError(err)
	}
}
