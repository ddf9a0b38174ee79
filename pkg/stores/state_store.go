package stores

// TaskStateStore holds the single "current task" of one UI flow and is
// the only place its state is mutated. Every mutation is validated
// against the task lifecycle (no status regression, one terminal
// transition, late events discarded) and produces a fresh value
// snapshot, so observers can rely on simple equality checks to decide
// whether to re-render.

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/graphmind/taskstream/pkg/errors"
	"github.com/graphmind/taskstream/pkg/task"
)

type TaskStateStore struct {
	mu       sync.Mutex
	current  *task.Task
	observer func(task.Task)
}

func NewTaskStateStore() *TaskStateStore {
	return &TaskStateStore{}
}

/*
Observe registers the single observer notified with a snapshot after
every applied mutation. Pass nil to unregister.
*/
func (s *TaskStateStore) Observe(fn func(task.Task)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

/*
Current returns a snapshot of the tracked task, if any.
*/
func (s *TaskStateStore) Current() (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return task.Task{}, false
	}
	return *s.current, true
}

/*
SetSubmitted creates a new pending task for taskID. It fails with
ErrTaskAlreadyActive while a non-terminal task is tracked; the caller
must dismiss it or wait for a terminal transition first.
*/
func (s *TaskStateStore) SetSubmitted(taskID, kind string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !s.current.Terminal() {
		return *s.current, errors.ErrTaskAlreadyActive.WithMessagef(
			"task %s is still %s", s.current.ID, s.current.Status)
	}

	s.current = &task.Task{
		ID:        taskID,
		Kind:      kind,
		Status:    task.StatusPending,
		CreatedAt: time.Now(),
	}

	snap := *s.current
	s.notify(snap)
	return snap, nil
}

/*
SetCompletedInline records a task the backend finished synchronously
within the submission call. Such tasks never receive an id or a stream;
they are created already terminal, with the result attached.
*/
func (s *TaskStateStore) SetCompletedInline(kind string, result []byte) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !s.current.Terminal() {
		return *s.current, errors.ErrTaskAlreadyActive.WithMessagef(
			"task %s is still %s", s.current.ID, s.current.Status)
	}

	now := time.Now()
	s.current = &task.Task{
		Kind:        kind,
		Status:      task.StatusCompleted,
		Result:      result,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	snap := *s.current
	s.notify(snap)
	return snap, nil
}

/*
ApplyEvent applies a normalized stream event to the tracked task. Events
for a different task id, or arriving after a terminal transition, are
discarded (logged, not errors: the transport may replay or lag). The
returned bool reports whether the event mutated the task.
*/
func (s *TaskStateStore) ApplyEvent(evt task.Event) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID != evt.TaskID {
		log.Debug("discarding event for unknown task", "taskId", evt.TaskID)
		return s.snapshot(), false
	}
	if s.current.Terminal() {
		log.Debug("discarding event after terminal status",
			"taskId", evt.TaskID, "status", s.current.Status)
		return *s.current, false
	}

	switch evt.Status {
	case task.StatusPending:
		if s.current.Status == task.StatusRunning {
			// Status never regresses from running back to pending.
			log.Debug("discarding status regression", "taskId", evt.TaskID)
			return *s.current, false
		}
		s.current.Message = evt.Message

	case task.StatusRunning:
		if s.current.Status != task.StatusRunning {
			now := time.Now()
			s.current.StartedAt = &now
		}
		s.current.Status = task.StatusRunning
		s.current.Message = evt.Message
		if evt.Progress != nil {
			s.applyProgress(*evt.Progress)
		}

	case task.StatusCompleted:
		s.finish(task.StatusCompleted, evt.Message)
		s.current.Result = evt.Result
		if s.current.HasProgress {
			s.current.Progress = 100
		}

	case task.StatusFailed:
		s.finish(task.StatusFailed, evt.Message)
		s.current.Error = evt.Error
		if s.current.Error == "" {
			s.current.Error = errors.ErrBackendFailure.Message
		}

	case task.StatusCancelled:
		s.finish(task.StatusCancelled, evt.Message)
	}

	snap := *s.current
	s.notify(snap)
	return snap, true
}

/*
MarkCancelled transitions the tracked task to cancelled locally, without
a stream event. No-op after a terminal status.
*/
func (s *TaskStateStore) MarkCancelled() (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return task.Task{}, errors.ErrNoActiveTask
	}
	if s.current.Terminal() {
		return *s.current, nil
	}

	s.finish(task.StatusCancelled, "cancelled by user")
	snap := *s.current
	s.notify(snap)
	return snap, nil
}

/*
MarkFailed transitions the tracked task to failed with the given reason,
used when the transport drops before the backend reports a terminal
status. No-op after a terminal status.
*/
func (s *TaskStateStore) MarkFailed(reason string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return task.Task{}, errors.ErrNoActiveTask
	}
	if s.current.Terminal() {
		return *s.current, nil
	}

	s.finish(task.StatusFailed, "")
	s.current.Error = reason
	snap := *s.current
	s.notify(snap)
	return snap, nil
}

/*
Dismiss clears the tracked task unconditionally.
*/
func (s *TaskStateStore) Dismiss() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// applyProgress clamps progress to [0,100] and keeps it monotonically
// non-decreasing; regressive values are discarded.
func (s *TaskStateStore) applyProgress(p int) {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	if s.current.HasProgress && p < s.current.Progress {
		return
	}
	s.current.Progress = p
	s.current.HasProgress = true
}

// finish performs the single terminal transition.
func (s *TaskStateStore) finish(status task.Status, message string) {
	now := time.Now()
	s.current.Status = status
	s.current.CompletedAt = &now
	if message != "" {
		s.current.Message = message
	}
}

func (s *TaskStateStore) snapshot() task.Task {
	if s.current == nil {
		return task.Task{}
	}
	return *s.current
}

// notify is called with s.mu held; the observer must not call back into
// the store synchronously.
func (s *TaskStateStore) notify(snap task.Task) {
	if s.observer != nil {
		s.observer(snap)
	}
}
