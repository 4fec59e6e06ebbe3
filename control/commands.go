package control

import (
	"fmt"
	"math"
	"time"

	"urdriver/shared"
)

// Configuration, force-mode, kinematics, and status commands. Commands
// whose result is a vector read it back from the output double registers
// captured at DONE.

// SetTcp sets the tool center point offset.
func (c *Channel) SetTcp(offset shared.Vector6) error {
	if err := verifyVector("tcp offset", offset); err != nil {
		return err
	}
	_, err := c.Execute(Command{Code: CMD_SET_TCP, Vec1: offset})
	return err
}

// GetTCPOffset reads the active tool center point offset.
func (c *Channel) GetTCPOffset() (shared.Vector6, error) {
	result, err := c.Execute(Command{Code: CMD_GET_TCP_OFFSET})
	return shared.Vector6(result), err
}

// SetPayload declares the payload mass and its center of gravity.
func (c *Channel) SetPayload(mass float64, cog shared.Vector3) error {
	if math.IsNaN(mass) || mass < 0 {
		return fmt.Errorf("%w: payload mass %v", shared.ErrOutOfRange, mass)
	}
	_, err := c.Execute(Command{
		Code:    CMD_SET_PAYLOAD,
		Vec1:    shared.Vector6{cog[0], cog[1], cog[2]},
		Scalars: [6]float64{mass},
	})
	return err
}

// TeachMode releases the brakes for hand guiding.
func (c *Channel) TeachMode() error {
	_, err := c.Execute(Command{Code: CMD_TEACH_MODE})
	return err
}

// EndTeachMode ends hand guiding.
func (c *Channel) EndTeachMode() error {
	_, err := c.Execute(Command{Code: CMD_END_TEACH_MODE})
	return err
}

// ZeroFtSensor tares the force/torque sensor.
func (c *Channel) ZeroFtSensor() error {
	_, err := c.Execute(Command{Code: CMD_ZERO_FT_SENSOR})
	return err
}

// ForceMode enters force control. taskFrame poses the compliance frame,
// selection picks compliant axes (1) per frame axis, wrench is the target
// force/torque, forceType selects the frame interpretation, and limits cap
// speed on compliant axes and deviation on the rest.
func (c *Channel) ForceMode(taskFrame shared.Vector6, selection [6]int, wrench shared.Vector6, forceType int, limits shared.Vector6) error {
	if err := verifyVector("task frame", taskFrame); err != nil {
		return err
	}
	if err := verifyVector("wrench", wrench); err != nil {
		return err
	}
	if err := verifyVector("limits", limits); err != nil {
		return err
	}
	for i, sel := range selection {
		if sel != 0 && sel != 1 {
			return fmt.Errorf("%w: selection[%d]=%d not in {0,1}", shared.ErrOutOfRange, i, sel)
		}
	}
	if forceType < 1 || forceType > 3 {
		return fmt.Errorf("%w: force type %d not in [1,3]", shared.ErrOutOfRange, forceType)
	}
	_, err := c.Execute(Command{
		Code:      CMD_FORCE_MODE,
		Flag:      forceType,
		Selection: selection,
		Vec1:      taskFrame,
		Vec2:      wrench,
		Scalars:   [6]float64{limits[0], limits[1], limits[2], limits[3], limits[4], limits[5]},
	})
	return err
}

// ForceModeStop leaves force control.
func (c *Channel) ForceModeStop() error {
	_, err := c.Execute(Command{Code: CMD_FORCE_MODE_STOP})
	return err
}

// ForceModeSetDamping scales how fast the robot loses speed when external
// forces vanish, 0 (no damping) to 1.
func (c *Channel) ForceModeSetDamping(damping float64) error {
	if err := verifyWithin("force mode damping", damping, 0, 1); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_FORCE_MODE_DAMPING,
		Scalars: [6]float64{damping},
	})
	return err
}

// ForceModeSetGainScaling scales the force-mode gain, 0 to 2.
func (c *Channel) ForceModeSetGainScaling(scaling float64) error {
	if err := verifyWithin("force mode gain scaling", scaling, 0, 2); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_FORCE_MODE_SCALING,
		Scalars: [6]float64{scaling},
	})
	return err
}

// ToolContact moves along the given direction until tool contact, returning
// the number of steps from contact detection to the reported reading.
func (c *Channel) ToolContact(direction shared.Vector6) (int, error) {
	if err := verifyVector("direction", direction); err != nil {
		return 0, err
	}
	result, err := c.Execute(Command{Code: CMD_TOOL_CONTACT, Vec1: direction})
	if err != nil {
		return 0, err
	}
	return int(result[0]), nil
}

// GetStepTime reads the controller step time in seconds.
func (c *Channel) GetStepTime() (float64, error) {
	result, err := c.Execute(Command{Code: CMD_GET_STEPTIME})
	return result[0], err
}

// GetActualJointPositionsHistory reads the joint configuration steps ticks
// in the past.
func (c *Channel) GetActualJointPositionsHistory(steps int) (shared.Vector6, error) {
	if steps < 0 {
		return shared.Vector6{}, fmt.Errorf("%w: history steps %d", shared.ErrOutOfRange, steps)
	}
	result, err := c.Execute(Command{Code: CMD_GET_ACTUAL_JOINT_POS_HISTORY, Flag: steps})
	return shared.Vector6(result), err
}

// GetTargetWaypoint reads the target waypoint of the active move.
func (c *Channel) GetTargetWaypoint() (shared.Vector6, error) {
	result, err := c.Execute(Command{Code: CMD_GET_TARGET_WAYPOINT})
	return shared.Vector6(result), err
}

// GetInverseKinematics solves joint positions for a pose, seeded near
// qNear. Kinematic math runs on the controller.
func (c *Channel) GetInverseKinematics(pose shared.Vector6, qNear shared.Vector6) (shared.Vector6, error) {
	if err := verifyVector("pose", pose); err != nil {
		return shared.Vector6{}, err
	}
	result, err := c.Execute(Command{
		Code: CMD_GET_INVERSE_KIN,
		Vec1: pose,
		Vec2: qNear,
	})
	return shared.Vector6(result), err
}

// GetForwardKinematics computes the pose reached by a joint configuration
// under the given TCP offset.
func (c *Channel) GetForwardKinematics(q shared.Vector6, tcpOffset shared.Vector6) (shared.Vector6, error) {
	if err := verifyVector("q", q); err != nil {
		return shared.Vector6{}, err
	}
	result, err := c.Execute(Command{
		Code: CMD_GET_FORWARD_KIN,
		Vec1: q,
		Vec2: tcpOffset,
	})
	return shared.Vector6(result), err
}

// PoseTransform multiplies two poses on the controller.
func (c *Channel) PoseTransform(pFrom, pFromTo shared.Vector6) (shared.Vector6, error) {
	if err := verifyVector("p_from", pFrom); err != nil {
		return shared.Vector6{}, err
	}
	if err := verifyVector("p_from_to", pFromTo); err != nil {
		return shared.Vector6{}, err
	}
	result, err := c.Execute(Command{
		Code: CMD_POSE_TRANS,
		Vec1: pFrom,
		Vec2: pFromTo,
	})
	return shared.Vector6(result), err
}

// GetJointTorques reads the torque on each joint.
func (c *Channel) GetJointTorques() (shared.Vector6, error) {
	result, err := c.Execute(Command{Code: CMD_GET_JOINT_TORQUES})
	return shared.Vector6(result), err
}

// IsSteady reports whether the robot is fully at rest.
func (c *Channel) IsSteady() (bool, error) {
	result, err := c.Execute(Command{Code: CMD_IS_STEADY})
	return result[0] != 0, err
}

// IsPoseWithinSafetyLimits checks a pose against the safety planes and
// joint limits.
func (c *Channel) IsPoseWithinSafetyLimits(pose shared.Vector6) (bool, error) {
	if err := verifyVector("pose", pose); err != nil {
		return false, err
	}
	result, err := c.Execute(Command{Code: CMD_IS_POSE_WITHIN_LIMITS, Vec1: pose})
	return result[0] != 0, err
}

// IsJointsWithinSafetyLimits checks a joint configuration against the
// safety limits.
func (c *Channel) IsJointsWithinSafetyLimits(q shared.Vector6) (bool, error) {
	if err := verifyVector("q", q); err != nil {
		return false, err
	}
	result, err := c.Execute(Command{Code: CMD_IS_JOINTS_WITHIN_LIMITS, Vec1: q})
	return result[0] != 0, err
}

// IsProtectiveStopped asks the control script for the protective stop state
// and reads it from the first result register.
func (c *Channel) IsProtectiveStopped() (bool, error) {
	result, err := c.Execute(Command{Code: CMD_PROTECTIVE_STOP})
	return result[0] != 0, err
}

// TriggerProtectiveStop asks the controller to enter a protective stop.
func (c *Channel) TriggerProtectiveStop() error {
	_, err := c.Execute(Command{Code: CMD_TRIGGER_PROTECTIVE_STOP})
	return err
}

// SetWatchdog configures the script-side watchdog on the command register,
// kicked by KickWatchdog at minFrequency or faster.
func (c *Channel) SetWatchdog(minFrequency float64) error {
	if err := verifyWithin("watchdog frequency", minFrequency, 0.1, 500); err != nil {
		return err
	}
	_, err := c.Execute(Command{
		Code:    CMD_SET_WATCHDOG,
		Scalars: [6]float64{minFrequency},
	})
	return err
}

// KickWatchdog feeds the script-side watchdog.
func (c *Channel) KickWatchdog() error {
	_, err := c.Execute(Command{Code: CMD_KICK_WATCHDOG})
	return err
}

// WaitAsyncDone blocks until the async progress register returns to idle,
// bounded by timeout.
func (c *Channel) WaitAsyncDone(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !c.sess.IsConnected() {
			return shared.ErrConnectionLost
		}
		if c.AsyncProgress() < 0 {
			return nil
		}
		time.Sleep(POLL_INTERVAL)
	}
	return fmt.Errorf("%w: async motion still in flight", shared.ErrTimeout)
}
