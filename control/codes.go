// Package control implements the command channel layered on the RTDE
// register mailbox: the host writes a command code plus payload into input
// registers, the control script running on the controller executes it and
// acknowledges through output registers.
//
// The register window starts at base 0 by default, or 24 when the upper
// range is selected to coexist with another program using the lower window.
package control

// Command codes written to input int register base+0. The companion
// control script decodes the same table; the two must not drift.
const (
	CMD_NOOP                         = 0
	CMD_MOVEJ                        = 1
	CMD_MOVEL                        = 2
	CMD_MOVEJ_IK                     = 3
	CMD_MOVEL_FK                     = 4
	CMD_MOVEP                        = 5
	CMD_MOVEC                        = 6
	CMD_SERVOJ                       = 7
	CMD_SERVOL                       = 8
	CMD_SPEEDJ                       = 9
	CMD_SPEEDL                       = 10
	CMD_SERVOC                       = 11
	CMD_FORCE_MODE                   = 12
	CMD_FORCE_MODE_STOP              = 13
	CMD_ZERO_FT_SENSOR               = 14
	CMD_STOPL                        = 15
	CMD_STOPJ                        = 16
	CMD_SET_PAYLOAD                  = 17
	CMD_TEACH_MODE                   = 18
	CMD_END_TEACH_MODE               = 19
	CMD_FORCE_MODE_DAMPING           = 20
	CMD_FORCE_MODE_SCALING           = 21
	CMD_TOOL_CONTACT                 = 22
	CMD_GET_STEPTIME                 = 23
	CMD_GET_ACTUAL_JOINT_POS_HISTORY = 24
	CMD_GET_TARGET_WAYPOINT          = 25
	CMD_SET_TCP                      = 26
	CMD_GET_INVERSE_KIN              = 27
	CMD_PROTECTIVE_STOP              = 28
	CMD_TRIGGER_PROTECTIVE_STOP      = 29
	CMD_POSE_TRANS                   = 30
	CMD_IS_STEADY                    = 31
	CMD_SET_WATCHDOG                 = 32
	CMD_KICK_WATCHDOG                = 33
	CMD_IS_POSE_WITHIN_LIMITS        = 34
	CMD_IS_JOINTS_WITHIN_LIMITS      = 35
	CMD_GET_JOINT_TORQUES            = 36
	CMD_GET_TCP_OFFSET               = 37
	CMD_JOG_START                    = 38
	CMD_JOG_STOP                     = 39
	CMD_GET_FORWARD_KIN              = 40
	CMD_MOVE_PATH                    = 41
	CMD_SERVO_STOP                   = 42
	CMD_SPEED_STOP                   = 43
)

// Jog feature frames for JogStart.
const (
	JOG_FEATURE_BASE   = 0
	JOG_FEATURE_TOOL   = 1
	JOG_FEATURE_CUSTOM = 2
)
