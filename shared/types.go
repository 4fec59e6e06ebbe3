package shared

import (
	"fmt"
	"strconv"
	"strings"
)

// Vector3 is a flat 3-vector of doubles as carried on the RTDE wire.
type Vector3 = [3]float64

// Vector6 is a six-vector of doubles: a joint configuration in radians or a
// TCP pose (x, y, z, rx, ry, rz) depending on context.
type Vector6 = [6]float64

// ConnectionState tracks the RTDE session lifecycle. Transitions are
// single-producer (the session); the receive loop only reads.
type ConnectionState int32

const (
	DISCONNECTED ConnectionState = iota
	CONNECTED
	STARTED
	PAUSED
)

func (s ConnectionState) String() string {
	switch s {
	case DISCONNECTED:
		return "disconnected"
	case CONNECTED:
		return "connected"
	case STARTED:
		return "started"
	case PAUSED:
		return "paused"
	default:
		return "unknown"
	}
}

// ControllerVersion identifies the controller software release. Determines
// the output stream rate (125 Hz for CB-series, 500 Hz for e-Series) and
// which in-script features are available.
type ControllerVersion struct {
	Major  uint32 `json:"major"`
	Minor  uint32 `json:"minor"`
	Bugfix uint32 `json:"bugfix"`
	Build  uint32 `json:"build"`
}

func (v ControllerVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Bugfix, v.Build)
}

// AtLeast reports whether the controller is at or past the given
// major.minor release.
func (v ControllerVersion) AtLeast(major, minor uint32) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// Frequency returns the output stream rate the controller generation
// supports: 125 Hz for CB-series (major <= 3), 500 Hz for e-Series.
func (v ControllerVersion) Frequency() float64 {
	if v.Major <= 3 {
		return CB_SERIES_FREQUENCY
	}
	return E_SERIES_FREQUENCY
}

// ParseControllerVersion parses a dotted version string such as "5.10.0" or
// "5.10.0.112". Bugfix and build default to zero when absent.
func ParseControllerVersion(s string) (ControllerVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 4 {
		return ControllerVersion{}, fmt.Errorf("%w: %q", ErrVersionParse, s)
	}

	var fields [4]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return ControllerVersion{}, fmt.Errorf("%w: %q", ErrVersionParse, s)
		}
		fields[i] = uint32(n)
	}
	return ControllerVersion{Major: fields[0], Minor: fields[1], Bugfix: fields[2], Build: fields[3]}, nil
}
