package domain

import "errors"

var (
	// ErrInvalidMockInput is returned when what-if inputs are not a JSON object.
	ErrInvalidMockInput = errors.New("mock inputs must be a JSON object")
	// ErrExecutionFailed wraps any failure raised while running a scenario.
	ErrExecutionFailed = errors.New("what-if execution failed")
	// ErrSandboxTimeout is the cause attached to ErrExecutionFailed when the sandbox deadline passes.
	ErrSandboxTimeout = errors.New("sandbox timed out")
	// ErrResultNotFound is returned for an unknown scenario or baseline id.
	ErrResultNotFound = errors.New("what-if result not found")
	// ErrSessionClosed is returned by requests on a finished debug session.
	ErrSessionClosed = errors.New("debug session closed")
	// ErrRequestUnsupported is returned by sessions that cannot issue requests.
	ErrRequestUnsupported = errors.New("debug request unsupported")
)
