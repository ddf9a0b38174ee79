package task

/*
Status enumerates the mutually-exclusive states a tracked task may be in.
Every component downstream of the stream boundary only ever sees this
closed set; the backend's vocabulary is translated once, in Normalize.
*/
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

/*
Terminal reports whether no further transitions are permitted from the
status.
*/
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

/*
Normalize maps the backend's status vocabulary onto the closed Status
set. "processing" becomes StatusRunning; "pending", "completed" and
"failed" pass through unchanged. Anything else degrades leniently to
StatusPending, with ok=false so callers can preserve the raw value for
diagnosis instead of dropping it.
*/
func Normalize(raw string) (Status, bool) {
	switch raw {
	case "processing":
		return StatusRunning, true
	case "pending":
		return StatusPending, true
	case "completed":
		return StatusCompleted, true
	case "failed":
		return StatusFailed, true
	}
	return StatusPending, false
}
