package control

import (
	"fmt"
	"strings"

	"urdriver/shared"
)

// MoveType selects the motion primitive for one path waypoint.
type MoveType int

const (
	MOVE_TYPE_MOVEJ MoveType = iota
	MOVE_TYPE_MOVEL
	MOVE_TYPE_MOVEP
	MOVE_TYPE_MOVEC
)

// PositionType says how a waypoint's six values are interpreted.
type PositionType int

const (
	POSITION_TCP_POSE PositionType = iota
	POSITION_JOINTS
)

// Waypoint is one path entry. Via is consumed only by MoveC waypoints,
// which arc through it on the way to Target.
type Waypoint struct {
	Move         MoveType
	Position     PositionType
	Target       shared.Vector6
	Via          shared.Vector6
	Velocity     float64
	Acceleration float64
	Blend        float64
}

// Path is a client-side waypoint sequence, serialized into script text and
// executed on the controller as a one-shot function. The script increments
// the async progress register on reaching each waypoint and marks the end
// with the done-register write.
type Path struct {
	Waypoints []Waypoint
}

func (p *Path) AddWaypoint(w Waypoint) {
	p.Waypoints = append(p.Waypoints, w)
}

// Validate applies the motion limits to every waypoint: joint limits for
// MoveJ entries, tool limits for the cartesian primitives.
func (p *Path) Validate() error {
	if len(p.Waypoints) == 0 {
		return fmt.Errorf("%w: empty path", shared.ErrOutOfRange)
	}
	for i, w := range p.Waypoints {
		if err := verifyVector(fmt.Sprintf("waypoint %d", i), w.Target); err != nil {
			return err
		}
		var err error
		if w.Move == MOVE_TYPE_MOVEJ {
			err = verifyJointSpeed(w.Velocity, w.Acceleration)
		} else {
			err = verifyToolSpeed(w.Velocity, w.Acceleration)
		}
		if err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
		if err := verifyBlend(w.Blend); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	return nil
}

func formatVector(v shared.Vector6, position PositionType) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6f", x)
	}
	inner := strings.Join(parts, ",")
	if position == POSITION_TCP_POSE {
		return "p[" + inner + "]"
	}
	return "[" + inner + "]"
}

// waypointLine renders one script statement for a waypoint.
func waypointLine(w Waypoint) (string, error) {
	target := formatVector(w.Target, w.Position)
	switch w.Move {
	case MOVE_TYPE_MOVEJ:
		return fmt.Sprintf("\tmovej(%s, a=%.6f, v=%.6f, r=%.6f)", target, w.Acceleration, w.Velocity, w.Blend), nil
	case MOVE_TYPE_MOVEL:
		return fmt.Sprintf("\tmovel(%s, a=%.6f, v=%.6f, r=%.6f)", target, w.Acceleration, w.Velocity, w.Blend), nil
	case MOVE_TYPE_MOVEP:
		return fmt.Sprintf("\tmovep(%s, a=%.6f, v=%.6f, r=%.6f)", target, w.Acceleration, w.Velocity, w.Blend), nil
	case MOVE_TYPE_MOVEC:
		via := formatVector(w.Via, w.Position)
		return fmt.Sprintf("\tmovec(%s, %s, a=%.6f, v=%.6f, r=%.6f)", via, target, w.Acceleration, w.Velocity, w.Blend), nil
	}
	return "", fmt.Errorf("%w: unknown move type %d", shared.ErrOutOfRange, int(w.Move))
}

// ToScript serializes the path against a register window: one motion line
// per waypoint, the progress register updated before each, idle (-1) and
// the done marker written at the end.
func (p *Path) ToScript(base int) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("def move_path():\n")
	for i, w := range p.Waypoints {
		fmt.Fprintf(&b, "\twrite_output_integer_register(%d, %d)\n", base+1, i)
		line, err := waypointLine(w)
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\twrite_output_integer_register(%d, -1)\n", base+1)
	fmt.Fprintf(&b, "\twrite_output_integer_register(%d, %d)\n", base, shared.UR_CONTROLLER_DONE_WITH_CMD)
	b.WriteString("end\n")
	return b.String(), nil
}
