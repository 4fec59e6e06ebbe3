// Package shared provides configuration, debugging helpers, common error
// values, and common robot types for the urdriver library.
//
// This file handles driver configuration through environment variables,
// optionally loaded from a .env file. Connection endpoints and debug mode
// are resolved here once; constructors accept explicit overrides for
// everything an environment variable can set.
package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DEBUG_MODE controls debug logging throughout the driver.
//
// When true, enables detailed debug output with file/line information and
// verbose error reporting. Set during InitConfig from the DEBUG environment
// variable and not modified at runtime afterwards.
var (
	DEBUG_MODE = false
)

const (
	// Controller-side TCP ports. Fixed by the robot controller, overridable
	// only for tests against a local mock.
	DEFAULT_RTDE_PORT      = 30004
	DEFAULT_SCRIPT_PORT    = 30002
	DEFAULT_DASHBOARD_PORT = 29999

	// Stream rates by controller generation.
	CB_SERIES_FREQUENCY = 125.0 // major version <= 3
	E_SERIES_FREQUENCY  = 500.0 // major version >= 5

	// Register handshake values written by the control script.
	UR_CONTROLLER_RDY_FOR_CMD   = 1
	UR_CONTROLLER_DONE_WITH_CMD = 2

	// Default wait bounds for the command channel.
	SETUP_TIMEOUT        = 5 * time.Second
	COMMAND_TIMEOUT      = 300 * time.Second
	PATH_COMMAND_TIMEOUT = 600 * time.Second

	MONGODB_MIN_POOL_SIZE = 2
	MONGODB_MAX_POOL_SIZE = 10
)

// InitConfig initializes driver configuration from environment variables.
//
// Call once before constructing a driver. A .env file in the working
// directory is loaded when present; a missing file is not an error.
//
// Environment Variables:
//   - DEBUG: Set to "true" to enable debug mode and verbose logging
//   - UR_ROBOT_HOST, UR_RTDE_PORT, UR_SCRIPT_PORT, UR_DASHBOARD_PORT
//   - HTTP_PORT, MONGODB_URI, MONGODB_DATABASE (optional attachments)
func InitConfig() {
	_ = godotenv.Load()
	DEBUG_MODE = os.Getenv("DEBUG") == "true"
}

// EnvOr returns the value of the named environment variable, or def when it
// is unset or empty.
func EnvOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// EnvPort resolves a port environment variable, falling back to def when the
// variable is unset or does not parse as an integer.
func EnvPort(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	port, err := strconv.Atoi(v)
	if err != nil {
		DebugError(err)
		return def
	}
	return port
}
