package exporter

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"urdriver/driver"
	"urdriver/rtde"
	"urdriver/shared"
)

func TestRobotCollectorGather(t *testing.T) {
	mock, err := rtde.NewMockController()
	if err != nil {
		t.Fatalf("mock listen failed: %v", err)
	}
	go mock.Serve()
	t.Cleanup(mock.Close)

	drv := driver.New(driver.Options{
		Host:          mock.Host(),
		RTDEPort:      mock.Port(),
		ScriptPort:    1,
		DashboardPort: 1,
	})
	if err := drv.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(drv.Disconnect)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && drv.Robot().FramesDecoded() == 0 {
		time.Sleep(time.Millisecond)
	}

	// One completed command gives the latency gauge a value.
	if err := drv.MoveJ(shared.Vector6{0, -1.57, 0, -1.57, 0, 0}, 1.05, 1.4, false); err != nil {
		t.Fatalf("MoveJ failed: %v", err)
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(NewRobotCollector("urdriver", drv, nil)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got := gatherValues(t, registry)

	if got["urdriver_connected"] != 1 {
		t.Errorf("Expected connected=1, got %v", got["urdriver_connected"])
	}
	if got["urdriver_frames_decoded_total"] < 1 {
		t.Errorf("Expected frames counter >= 1, got %v", got["urdriver_frames_decoded_total"])
	}
	if got["urdriver_async_progress"] != -1 {
		t.Errorf("Expected idle async progress, got %v", got["urdriver_async_progress"])
	}
	if got["urdriver_program_running"] != 1 {
		t.Errorf("Expected program running, got %v", got["urdriver_program_running"])
	}
	if got["urdriver_reconnects_total"] != 0 {
		t.Errorf("Expected no reconnects yet, got %v", got["urdriver_reconnects_total"])
	}
	if got["urdriver_last_command_latency_seconds"] <= 0 {
		t.Errorf("Expected positive command latency, got %v", got["urdriver_last_command_latency_seconds"])
	}

	if err := drv.Reconnect(); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	got = gatherValues(t, registry)
	if got["urdriver_reconnects_total"] != 1 {
		t.Errorf("Expected reconnects counter at 1, got %v", got["urdriver_reconnects_total"])
	}
}

func gatherValues(t *testing.T, registry *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	got := make(map[string]float64)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "urdriver_") {
			t.Errorf("Unexpected metric family %q", mf.GetName())
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				got[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				got[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	return got
}
