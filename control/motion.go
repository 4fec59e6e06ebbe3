package control

import (
	"urdriver/shared"
)

// Motion commands. Each call validates its arguments against the §limits
// table, emits exactly one input frame carrying its command code (followed
// by the clear frame), and blocks until the controller
// acknowledges: completion of the motion for synchronous calls, start of
// the motion for async ones.

// MoveJ moves to a joint configuration with a joint-space trajectory.
func (c *Channel) MoveJ(q shared.Vector6, velocity, acceleration float64, async bool) error {
	if err := verifyVector("q", q); err != nil {
		return err
	}
	if err := verifyJointSpeed(velocity, acceleration); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_MOVEJ,
		Async:   async,
		Vec1:    q,
		Scalars: [6]float64{velocity, acceleration},
	})
	return err
}

// MoveJIK moves joint-space to the configuration solving the given pose.
func (c *Channel) MoveJIK(pose shared.Vector6, velocity, acceleration float64, async bool) error {
	if err := verifyVector("pose", pose); err != nil {
		return err
	}
	if err := verifyJointSpeed(velocity, acceleration); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_MOVEJ_IK,
		Async:   async,
		Vec1:    pose,
		Scalars: [6]float64{velocity, acceleration},
	})
	return err
}

// MoveL moves linearly in tool space to the given pose.
func (c *Channel) MoveL(pose shared.Vector6, velocity, acceleration float64, async bool) error {
	if err := verifyVector("pose", pose); err != nil {
		return err
	}
	if err := verifyToolSpeed(velocity, acceleration); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_MOVEL,
		Async:   async,
		Vec1:    pose,
		Scalars: [6]float64{velocity, acceleration},
	})
	return err
}

// MoveLFK moves linearly to the pose reached by the given joint
// configuration (forward kinematics on the controller).
func (c *Channel) MoveLFK(q shared.Vector6, velocity, acceleration float64, async bool) error {
	if err := verifyVector("q", q); err != nil {
		return err
	}
	if err := verifyToolSpeed(velocity, acceleration); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_MOVEL_FK,
		Async:   async,
		Vec1:    q,
		Scalars: [6]float64{velocity, acceleration},
	})
	return err
}

// MoveP moves in process mode: constant tool speed with circular blends.
func (c *Channel) MoveP(pose shared.Vector6, velocity, acceleration, blend float64, async bool) error {
	if err := verifyVector("pose", pose); err != nil {
		return err
	}
	if err := verifyToolSpeed(velocity, acceleration); err != nil {
		return err
	}
	if err := verifyBlend(blend); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_MOVEP,
		Async:   async,
		Vec1:    pose,
		Scalars: [6]float64{velocity, acceleration, blend},
	})
	return err
}

// MoveC moves circularly through via to target. Mode 0 keeps the tool
// orientation relative to the arc tangent, mode 1 keeps it fixed.
func (c *Channel) MoveC(via, target shared.Vector6, velocity, acceleration, blend float64, mode int, async bool) error {
	if err := verifyVector("via", via); err != nil {
		return err
	}
	if err := verifyVector("target", target); err != nil {
		return err
	}
	if err := verifyToolSpeed(velocity, acceleration); err != nil {
		return err
	}
	if err := verifyBlend(blend); err != nil {
		return err
	}
	cmd := Command{
		Code:    CMD_MOVEC,
		Async:   async,
		Vec1:    via,
		Vec2:    target,
		Scalars: [6]float64{velocity, acceleration, blend, float64(mode)},
	}
	_, err := c.Execute(cmd)
	return err
}

// ServoJ streams a joint servo target. Meant to be called at the stream
// rate; time is the segment duration.
func (c *Channel) ServoJ(q shared.Vector6, velocity, acceleration, time, lookaheadTime, gain float64) error {
	if err := verifyVector("q", q); err != nil {
		return err
	}
	if err := verifyJointSpeed(velocity, acceleration); err != nil {
		return err
	}
	if err := verifyServoParams(lookaheadTime, gain); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_SERVOJ,
		Vec1:    q,
		Scalars: [6]float64{velocity, acceleration, time, lookaheadTime, gain},
	})
	return err
}

// ServoL servoes linearly to a pose.
func (c *Channel) ServoL(pose shared.Vector6, velocity, acceleration, time, lookaheadTime, gain float64) error {
	if err := verifyVector("pose", pose); err != nil {
		return err
	}
	if err := verifyToolSpeed(velocity, acceleration); err != nil {
		return err
	}
	if err := verifyServoParams(lookaheadTime, gain); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_SERVOL,
		Vec1:    pose,
		Scalars: [6]float64{velocity, acceleration, time, lookaheadTime, gain},
	})
	return err
}

// ServoC servoes circularly to a pose with a blend radius.
func (c *Channel) ServoC(pose shared.Vector6, velocity, acceleration, blend float64) error {
	if err := verifyVector("pose", pose); err != nil {
		return err
	}
	if err := verifyToolSpeed(velocity, acceleration); err != nil {
		return err
	}
	if err := verifyBlend(blend); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_SERVOC,
		Vec1:    pose,
		Scalars: [6]float64{velocity, acceleration, blend},
	})
	return err
}

// ServoStop decelerates out of servo mode.
func (c *Channel) ServoStop(deceleration float64) error {
	if err := verifyWithin("joint deceleration", deceleration, MIN_JOINT_ACCELERATION, MAX_JOINT_ACCELERATION); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_SERVO_STOP,
		Scalars: [6]float64{deceleration},
	})
	return err
}

// SpeedJ accelerates to the given joint speeds. time bounds the command on
// the controller; zero means until superseded.
func (c *Channel) SpeedJ(qd shared.Vector6, acceleration, time float64) error {
	if err := verifyVector("qd", qd); err != nil {
		return err
	}
	if err := verifyWithin("joint acceleration", acceleration, MIN_JOINT_ACCELERATION, MAX_JOINT_ACCELERATION); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_SPEEDJ,
		Vec1:    qd,
		Scalars: [6]float64{0, acceleration, time},
	})
	return err
}

// SpeedL accelerates the tool to the given cartesian speed vector.
func (c *Channel) SpeedL(xd shared.Vector6, acceleration, time float64) error {
	if err := verifyVector("xd", xd); err != nil {
		return err
	}
	if err := verifyWithin("tool acceleration", acceleration, MIN_TOOL_ACCELERATION, MAX_TOOL_ACCELERATION); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_SPEEDL,
		Vec1:    xd,
		Scalars: [6]float64{0, acceleration, time},
	})
	return err
}

// SpeedStop decelerates out of speed mode.
func (c *Channel) SpeedStop(deceleration float64) error {
	if err := verifyWithin("joint deceleration", deceleration, MIN_JOINT_ACCELERATION, MAX_JOINT_ACCELERATION); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_SPEED_STOP,
		Scalars: [6]float64{deceleration},
	})
	return err
}

// StopJ decelerates all joints. Aborts an in-flight async joint motion.
func (c *Channel) StopJ(deceleration float64) error {
	if err := verifyWithin("joint deceleration", deceleration, MIN_JOINT_ACCELERATION, MAX_JOINT_ACCELERATION); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_STOPJ,
		Scalars: [6]float64{deceleration},
	})
	return err
}

// StopL decelerates the tool linearly. Aborts an in-flight async linear
// motion.
func (c *Channel) StopL(deceleration float64) error {
	if err := verifyWithin("tool deceleration", deceleration, MIN_TOOL_ACCELERATION, MAX_TOOL_ACCELERATION); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_STOPL,
		Scalars: [6]float64{deceleration},
	})
	return err
}

// JogStart starts jogging with the given speed vector in the selected
// feature frame. customFrame applies with JOG_FEATURE_CUSTOM.
func (c *Channel) JogStart(speeds shared.Vector6, feature int, customFrame shared.Vector6) error {
	if err := verifyVector("speeds", speeds); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:      CMD_JOG_START,
		Selection: [6]int{feature},
		Vec1:      speeds,
		Vec2:      customFrame,
	})
	return err
}

// JogStop ends jogging.
func (c *Channel) JogStop() error {
	_, err := c.Execute(Command{Code: CMD_JOG_STOP})
	return err
}
