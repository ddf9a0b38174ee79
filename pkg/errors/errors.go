package errors

import "fmt"

/*
TaskError is the error type shared by every component of the task
tracking core. Code ranges follow the JSON-RPC reserved-code convention
the backend uses for its own error payloads.
*/
type TaskError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

/*
Error implements the error interface for TaskError.
*/
func (e *TaskError) Error() string {
	return fmt.Sprintf("task error %d: %s", e.Code, e.Message)
}

/*
Is allows errors.Is matching on the code, so that copies produced by
WithMessagef still compare equal to their sentinel.
*/
func (e *TaskError) Is(target error) bool {
	other, ok := target.(*TaskError)
	return ok && other.Code == e.Code
}

// Sentinel errors of the tracking core (-32000 .. -32099).
var (
	// ErrSubmissionFailed covers network or validation failure of the
	// initial job-creating call. Recoverable by re-submitting.
	ErrSubmissionFailed = &TaskError{Code: -32000, Message: "job submission failed"}

	// ErrTransport covers an event stream that dropped or errored
	// before a terminal event arrived.
	ErrTransport = &TaskError{Code: -32001, Message: "task stream transport error"}

	// ErrTaskAlreadyActive is a usage error: a new task was started
	// while a non-terminal one is still tracked.
	ErrTaskAlreadyActive = &TaskError{Code: -32002, Message: "a task is already active"}

	// ErrBackendFailure carries the reason string of a task the
	// backend itself reported as failed.
	ErrBackendFailure = &TaskError{Code: -32003, Message: "task failed"}

	// ErrMalformedEvent marks a stream event missing required fields.
	// Such events are logged and skipped, never fatal to the stream.
	ErrMalformedEvent = &TaskError{Code: -32004, Message: "malformed stream event"}

	// ErrAlreadyOpen is returned when a stream client is opened twice.
	ErrAlreadyOpen = &TaskError{Code: -32005, Message: "stream already open"}

	// ErrNoActiveTask is returned by operations that require a tracked
	// task when none is present.
	ErrNoActiveTask = &TaskError{Code: -32006, Message: "no active task"}

	// ErrInvalidPhase is a usage error: a controller method was called
	// in a lifecycle phase that does not permit it.
	ErrInvalidPhase = &TaskError{Code: -32007, Message: "operation not valid in current phase"}

	// ErrTaskNotFound is the server-side lookup failure.
	ErrTaskNotFound = &TaskError{Code: -32010, Message: "task not found"}

	// ErrUnknownKind is the server-side rejection of a job kind with no
	// registered runner.
	ErrUnknownKind = &TaskError{Code: -32011, Message: "unknown job kind"}
)

/*
WithMessagef creates a copy of a TaskError with a formatted message. The
sentinel itself is never modified.
*/
func (e *TaskError) WithMessagef(format string, args ...any) *TaskError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

/*
WithData creates a copy of a TaskError carrying an arbitrary payload,
typically the raw input that triggered it.
*/
func (e *TaskError) WithData(data any) *TaskError {
	cp := *e
	cp.Data = data
	return &cp
}
