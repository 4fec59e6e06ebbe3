// Debug helpers with automatic caller information.
//
// DebugPrint is silent unless DEBUG_MODE is set; DebugError and DebugPanic
// always log, and add caller information only when DEBUG_MODE is set.
// Set the DEBUG environment variable to "true" to enable debug logging.
package shared

import (
	"log"
	"path/filepath"
	"runtime"
	"strings"
)

// DebugPrint automatically gets file, line, and function info
func DebugPrint(format string, args ...interface{}) {
	if !DEBUG_MODE {
		return
	}

	// Use runtime.Caller(1) to get the caller of DebugPrint
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Printf("DEBUG: "+format+"\n", args...)
		return
	}

	filename := filepath.Base(file)
	funcName := getShortFuncName(runtime.FuncForPC(pc).Name())

	// Format: [filename:line funcName] message
	log.Printf("[%s:%d %s]: "+format+"\n", append([]interface{}{filename, line, funcName}, args...)...)
}

// DebugError prints an error message with file/line info
func DebugError(err error) {
	if !DEBUG_MODE {
		log.Printf("ERROR: %v\n", err)
		return
	}

	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Printf("ERROR: %v\n", err)
		return
	}

	filename := filepath.Base(file)
	funcName := getShortFuncName(runtime.FuncForPC(pc).Name())

	log.Printf("ERROR [%s:%d %s]: %v\n", filename, line, funcName, err)
}

func DebugPanic(format string, args ...interface{}) {
	if !DEBUG_MODE {
		log.Printf("CRITICAL ERROR (would panic in debug): "+format, args...)
		return
	}

	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Panicf("PANIC: "+format, args...)
		return
	}

	filename := filepath.Base(file)
	funcName := getShortFuncName(runtime.FuncForPC(pc).Name())

	log.Panicf("PANIC [%s:%d %s]: "+format,
		append([]interface{}{filename, line, funcName}, args...)...)
}

// Helper to get short function name
func getShortFuncName(fullName string) string {
	// Remove package path
	if lastSlash := strings.LastIndex(fullName, "/"); lastSlash >= 0 {
		fullName = fullName[lastSlash+1:]
	}
	// Remove receiver/package prefix, keep just function name
	if lastDot := strings.LastIndex(fullName, "."); lastDot >= 0 {
		return fullName[lastDot+1:]
	}
	return fullName
}
