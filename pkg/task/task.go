package task

import (
	"encoding/json"
	"time"
)

/*
Task is the unit of asynchronous backend work tracked by the client. The
id is assigned by the backend at submission time and is stable for the
task's lifetime. Result and Error are mutually exclusive and are each
set at most once, on the transition into their terminal status.
*/
type Task struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Status   Status          `json:"status"`
	Progress int             `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// HasProgress distinguishes "no progress reported yet" from 0%.
	HasProgress bool `json:"hasProgress,omitempty"`
}

/*
Terminal reports whether the task has reached a status from which no
further transitions are permitted.
*/
func (t Task) Terminal() bool {
	return t.Status.Terminal()
}
