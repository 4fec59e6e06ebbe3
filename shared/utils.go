// Package shared provides utility functions for the urdriver library.
package shared

import "io"

// SafeClose closes a resource without propagating errors. Close failures
// during teardown are logged when DEBUG_MODE is set and otherwise ignored;
// nil is ignored safely.
//
// Example Usage:
//
//	defer shared.SafeClose(conn)
func SafeClose(closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		DebugPrint("Error closing resource: %v", err)
	}
}
