package stores

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/taskstream/pkg/errors"
	"github.com/graphmind/taskstream/pkg/task"
)

func progressEvent(id string, progress int, message string) task.Event {
	return task.Event{
		Type:     task.EventProgress,
		TaskID:   id,
		Status:   task.StatusRunning,
		Progress: &progress,
		Message:  message,
	}
}

func TestSetSubmitted(t *testing.T) {
	store := NewTaskStateStore()

	snap, err := store.SetSubmitted("t1", "rebuild_communities")
	require.NoError(t, err)

	assert.Equal(t, "t1", snap.ID)
	assert.Equal(t, "rebuild_communities", snap.Kind)
	assert.Equal(t, task.StatusPending, snap.Status)
	assert.False(t, snap.HasProgress)
	assert.NotZero(t, snap.CreatedAt)
	assert.Nil(t, snap.StartedAt)
}

func TestSetSubmittedRejectsSecondActiveTask(t *testing.T) {
	store := NewTaskStateStore()

	_, err := store.SetSubmitted("t1", "rebuild_communities")
	require.NoError(t, err)

	// A second submission while t1 is non-terminal must fail and must
	// not touch the existing task.
	snap, err := store.SetSubmitted("t2", "ingest_memory")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTaskAlreadyActive)
	assert.Equal(t, "t1", snap.ID)

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "t1", current.ID)
}

func TestSetSubmittedReplacesTerminalTask(t *testing.T) {
	store := NewTaskStateStore()

	_, err := store.SetSubmitted("t1", "rebuild_communities")
	require.NoError(t, err)
	store.ApplyEvent(task.Event{Type: task.EventCompleted, TaskID: "t1", Status: task.StatusCompleted})

	snap, err := store.SetSubmitted("t2", "ingest_memory")
	require.NoError(t, err)
	assert.Equal(t, "t2", snap.ID)
}

func TestApplyEventRunningTransition(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")

	snap, applied := store.ApplyEvent(progressEvent("t1", 40, "scoring relations"))
	require.True(t, applied)

	assert.Equal(t, task.StatusRunning, snap.Status)
	assert.Equal(t, 40, snap.Progress)
	assert.True(t, snap.HasProgress)
	assert.Equal(t, "scoring relations", snap.Message)
	require.NotNil(t, snap.StartedAt)
}

func TestApplyEventIgnoresUnknownTaskID(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")

	_, applied := store.ApplyEvent(progressEvent("t2", 40, ""))
	assert.False(t, applied)

	current, _ := store.Current()
	assert.Equal(t, task.StatusPending, current.Status)
}

func TestApplyEventRejectsStatusRegression(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")
	store.ApplyEvent(progressEvent("t1", 40, "working"))

	// A later pending event for the same task must be ignored.
	snap, applied := store.ApplyEvent(task.Event{Type: task.EventProgress, TaskID: "t1", Status: task.StatusPending, Message: "queued"})
	assert.False(t, applied)
	assert.Equal(t, task.StatusRunning, snap.Status)
	assert.Equal(t, "working", snap.Message)
}

func TestApplyEventProgressIsMonotonic(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")

	store.ApplyEvent(progressEvent("t1", 60, ""))
	snap, applied := store.ApplyEvent(progressEvent("t1", 40, "late"))

	// The event still applies (message updates), the regressive
	// progress value is discarded.
	assert.True(t, applied)
	assert.Equal(t, 60, snap.Progress)
	assert.Equal(t, "late", snap.Message)
}

func TestApplyEventClampsProgress(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")

	snap, _ := store.ApplyEvent(progressEvent("t1", 140, ""))
	assert.Equal(t, 100, snap.Progress)
}

func TestTerminalExactlyOnce(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")

	result := json.RawMessage(`{"communities_count":12}`)
	snap, applied := store.ApplyEvent(task.Event{Type: task.EventCompleted, TaskID: "t1", Status: task.StatusCompleted, Result: result})
	require.True(t, applied)
	assert.Equal(t, task.StatusCompleted, snap.Status)
	assert.JSONEq(t, `{"communities_count":12}`, string(snap.Result))
	require.NotNil(t, snap.CompletedAt)

	// Duplicate terminal delivery is a no-op; the result is never
	// overwritten.
	dup := json.RawMessage(`{"communities_count":99}`)
	snap, applied = store.ApplyEvent(task.Event{Type: task.EventCompleted, TaskID: "t1", Status: task.StatusCompleted, Result: dup})
	assert.False(t, applied)
	assert.JSONEq(t, `{"communities_count":12}`, string(snap.Result))

	// And so is any later progress event.
	_, applied = store.ApplyEvent(progressEvent("t1", 99, ""))
	assert.False(t, applied)
}

func TestApplyEventFailed(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "ingest_memory")

	snap, applied := store.ApplyEvent(task.Event{Type: task.EventFailed, TaskID: "t1", Status: task.StatusFailed, Error: "graph unavailable"})
	require.True(t, applied)
	assert.Equal(t, task.StatusFailed, snap.Status)
	assert.Equal(t, "graph unavailable", snap.Error)
	assert.Empty(t, snap.Result)
}

func TestMarkCancelled(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")
	store.ApplyEvent(progressEvent("t1", 60, ""))

	snap, err := store.MarkCancelled()
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, snap.Status)

	// Events after cancellation are discarded.
	_, applied := store.ApplyEvent(progressEvent("t1", 80, ""))
	assert.False(t, applied)
}

func TestMarkCancelledWithoutTask(t *testing.T) {
	store := NewTaskStateStore()
	_, err := store.MarkCancelled()
	assert.ErrorIs(t, err, errors.ErrNoActiveTask)
}

func TestMarkFailed(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")

	snap, err := store.MarkFailed("task stream dropped")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, snap.Status)
	assert.Equal(t, "task stream dropped", snap.Error)

	// Terminal already; a second mark is a no-op.
	snap, err = store.MarkFailed("other reason")
	require.NoError(t, err)
	assert.Equal(t, "task stream dropped", snap.Error)
}

func TestSetCompletedInline(t *testing.T) {
	store := NewTaskStateStore()

	snap, err := store.SetCompletedInline("rebuild_communities", []byte(`{"communities_count":3}`))
	require.NoError(t, err)

	assert.Empty(t, snap.ID)
	assert.Equal(t, task.StatusCompleted, snap.Status)
	assert.JSONEq(t, `{"communities_count":3}`, string(snap.Result))
	require.NotNil(t, snap.CompletedAt)
}

func TestDismiss(t *testing.T) {
	store := NewTaskStateStore()
	store.SetSubmitted("t1", "rebuild_communities")

	store.Dismiss()
	_, ok := store.Current()
	assert.False(t, ok)

	// A new submission is accepted after dismissal.
	_, err := store.SetSubmitted("t2", "ingest_memory")
	assert.NoError(t, err)
}

func TestObserverReceivesSnapshots(t *testing.T) {
	store := NewTaskStateStore()

	var seen []task.Task
	store.Observe(func(snap task.Task) { seen = append(seen, snap) })

	store.SetSubmitted("t1", "rebuild_communities")
	store.ApplyEvent(progressEvent("t1", 40, ""))
	store.ApplyEvent(task.Event{Type: task.EventCompleted, TaskID: "t1", Status: task.StatusCompleted})
	// Discarded events do not notify.
	store.ApplyEvent(progressEvent("t1", 80, ""))

	require.Len(t, seen, 3)
	assert.Equal(t, task.StatusPending, seen[0].Status)
	assert.Equal(t, task.StatusRunning, seen[1].Status)
	assert.Equal(t, task.StatusCompleted, seen[2].Status)
}
