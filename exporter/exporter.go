// Package exporter publishes session health as Prometheus metrics: stream
// liveness, decoded frame counts, async progress, and robot status. The
// collector reads the shared snapshot; it never writes to the robot.
package exporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"urdriver/driver"
)

type metricInfo struct {
	description *prometheus.Desc
	valueType   prometheus.ValueType
	supplier    func(d *driver.RobotDriver) float64
}

// RobotCollector implements prometheus.Collector over one robot driver.
type RobotCollector struct {
	drv   *driver.RobotDriver
	infos []metricInfo
}

func NewRobotCollector(prefix string, drv *driver.RobotDriver, constLabels prometheus.Labels) *RobotCollector {
	if prefix == "" {
		prefix = "urdriver"
	}
	labels := prometheus.Labels{"session_id": drv.SessionID}
	for k, v := range constLabels {
		labels[k] = v
	}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prefix+"_"+name, help, nil, labels)
	}

	return &RobotCollector{
		drv: drv,
		infos: []metricInfo{
			{
				description: desc("connected", "Whether the RTDE session is connected."),
				valueType:   prometheus.GaugeValue,
				supplier: func(d *driver.RobotDriver) float64 {
					if d.IsConnected() {
						return 1
					}
					return 0
				},
			},
			{
				description: desc("frames_decoded_total", "Output frames decoded into the snapshot."),
				valueType:   prometheus.CounterValue,
				supplier: func(d *driver.RobotDriver) float64 {
					return float64(d.Robot().FramesDecoded())
				},
			},
			{
				description: desc("snapshot_age_seconds", "Seconds since the snapshot last changed."),
				valueType:   prometheus.GaugeValue,
				supplier: func(d *driver.RobotDriver) float64 {
					last := d.Robot().LastUpdate()
					if last.IsZero() {
						return -1
					}
					return time.Since(last).Seconds()
				},
			},
			{
				description: desc("reconnects_total", "Reconnect attempts over the driver's lifetime."),
				valueType:   prometheus.CounterValue,
				supplier: func(d *driver.RobotDriver) float64 {
					return float64(d.Reconnects())
				},
			},
			{
				description: desc("last_command_latency_seconds", "Send-to-DONE duration of the most recent command."),
				valueType:   prometheus.GaugeValue,
				supplier: func(d *driver.RobotDriver) float64 {
					return d.LastCommandLatency().Seconds()
				},
			},
			{
				description: desc("async_progress", "Waypoint index of the async motion in flight, -1 when idle."),
				valueType:   prometheus.GaugeValue,
				supplier: func(d *driver.RobotDriver) float64 {
					return float64(d.AsyncProgress())
				},
			},
			{
				description: desc("program_running", "Whether the controller program is running."),
				valueType:   prometheus.GaugeValue,
				supplier: func(d *driver.RobotDriver) float64 {
					if d.Robot().IsProgramRunning() {
						return 1
					}
					return 0
				},
			},
			{
				description: desc("speed_scaling", "Controller speed scaling."),
				valueType:   prometheus.GaugeValue,
				supplier: func(d *driver.RobotDriver) float64 {
					return d.Robot().SpeedScaling()
				},
			},
		},
	}
}

func (c *RobotCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, info := range c.infos {
		descs <- info.description
	}
}

func (c *RobotCollector) Collect(metrics chan<- prometheus.Metric) {
	for _, info := range c.infos {
		metrics <- prometheus.MustNewConstMetric(info.description, info.valueType, info.supplier(c.drv))
	}
}
