package ui

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/graphmind/taskstream/pkg/task"
)

func TestProgressLine(t *testing.T) {
	line := ProgressLine(task.Task{
		Kind:        "rebuild_communities",
		Status:      task.StatusRunning,
		Progress:    50,
		Message:     "detecting communities",
		HasProgress: true,
	})

	assert.Contains(t, line, "running")
	assert.Contains(t, line, "rebuild_communities")
	assert.Contains(t, line, "50%")
	assert.Contains(t, line, "detecting communities")
	// Half the bar is filled at 50 percent.
	assert.Contains(t, line, "██████████░░░░░░░░░░")
}

func TestProgressLineWithoutProgress(t *testing.T) {
	line := ProgressLine(task.Task{
		Kind:   "ingest_memory",
		Status: task.StatusPending,
	})

	assert.Contains(t, line, "pending")
	assert.NotContains(t, line, "%")
}

func TestReportCompleted(t *testing.T) {
	out := Report(task.Task{
		ID:     "t1",
		Kind:   "rebuild_communities",
		Status: task.StatusCompleted,
		Result: json.RawMessage(`{"communities_count":12}`),
	})

	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, `"communities_count":12`)
}

func TestReportFailed(t *testing.T) {
	out := Report(task.Task{
		Kind:   "ingest_memory",
		Status: task.StatusFailed,
		Error:  "embedding backend unavailable",
	})

	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "embedding backend unavailable")
}
