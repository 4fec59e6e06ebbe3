// Package shared defines the error values used throughout the urdriver
// library.
//
// Errors are categorized by functional area: transport, protocol, version,
// timeout, validation, and controller-side faults. Call sites wrap these
// sentinels with fmt.Errorf("...: %w", err) to add context while keeping
// errors.Is checks working.
package shared

import "errors"

// Transport Errors
//
// These errors relate to the TCP connections to the controller.

// ErrNotConnected indicates an operation was attempted on a session that is
// not connected to the controller.
var ErrNotConnected = errors.New("not connected to controller")

// ErrConnectionLost indicates the socket failed mid-session. The receive
// loop publishes this before exiting; Reconnect clears it.
var ErrConnectionLost = errors.New("connection to controller lost")

// Protocol Errors
//
// These errors indicate the controller sent something the driver cannot
// accept, or rejected a setup request.

// ErrCorruptFrame indicates a packet whose declared length is below the
// 3-byte header minimum or does not match the bytes read.
var ErrCorruptFrame = errors.New("corrupt RTDE frame")

// ErrUnknownPacket indicates a packet type the driver does not handle.
var ErrUnknownPacket = errors.New("unknown RTDE packet type")

// ErrFieldNotFound indicates the controller reported NOT_FOUND for a
// requested recipe variable. Fatal for the session setup.
var ErrFieldNotFound = errors.New("recipe variable not found on controller")

// ErrSetupRejected indicates the controller refused a start, pause, or
// recipe setup request.
var ErrSetupRejected = errors.New("controller rejected setup request")

// Version Errors

// ErrVersionParse indicates the controller version reply could not be parsed.
var ErrVersionParse = errors.New("cannot parse controller version")

// ErrVersionTooOld indicates a requested feature needs a newer controller.
var ErrVersionTooOld = errors.New("controller version too old for requested feature")

// Timeout Errors

// ErrTimeout indicates a bounded wait expired: handshake, ready wait,
// command done wait, or program start wait. The controller-side motion is
// not aborted; the caller decides whether to issue a stop.
var ErrTimeout = errors.New("timed out waiting for controller")

// Validation Errors

// ErrOutOfRange indicates a motion argument outside its permitted range,
// or a NaN input. No frame is emitted for the rejected command.
var ErrOutOfRange = errors.New("argument out of range")

// Controller Errors

// ErrControllerStopped indicates the control program left the running state
// (protective or emergency stop) while the driver was awaiting a command
// acknowledgement.
var ErrControllerStopped = errors.New("controller program stopped during command")

// ErrCommandRetry indicates a command failed even after the single
// reconnect-and-resend attempt the channel allows.
var ErrCommandRetry = errors.New("command failed after reconnect retry")

// Script Errors

// ErrScriptTemplate indicates a malformed version marker in a control
// script template.
var ErrScriptTemplate = errors.New("malformed version marker in script template")
