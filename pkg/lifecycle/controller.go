package lifecycle

// Controller is the single orchestration point of a task-tracking flow:
// it submits the job, opens the stream for the returned id, funnels
// every event through the state store, and performs the configured
// post-completion effects exactly once per run. UI surfaces hold one
// controller each and only ever read store snapshots.

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/graphmind/taskstream/pkg/client"
	"github.com/graphmind/taskstream/pkg/errors"
	"github.com/graphmind/taskstream/pkg/stores"
	"github.com/graphmind/taskstream/pkg/task"
)

/*
Phase is the controller's position in one lifecycle run.
*/
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseStreaming
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseStreaming:
		return "streaming"
	case PhaseTerminal:
		return "terminal"
	}
	return "unknown"
}

/*
Submitter is the backend collaborator that starts and cancels jobs.
*/
type Submitter interface {
	Submit(ctx context.Context, kind string, payload any, background bool) (client.SubmitOutcome, error)
	Cancel(ctx context.Context, taskID string) error
}

/*
Stream is one push-subscription for one task id. Open may only be
called once; Close must be idempotent.
*/
type Stream interface {
	Open(ctx context.Context, taskID string, onEvent func(task.Event), onTransportError func(error)) error
	Close() error
}

/*
Config wires a Controller to its collaborators. Submitter and OpenStream
are required; Store defaults to a fresh TaskStateStore. OnCompleted and
Navigate are the optional post-completion effects, each invoked at most
once per run, only on success.
*/
type Config struct {
	Submitter  Submitter
	Store      *stores.TaskStateStore
	OpenStream func(taskID string) Stream

	OnCompleted    func(task.Task)
	Navigate       func(path string)
	CompletionPath string
}

type Controller struct {
	mu  sync.Mutex
	cfg Config

	phase      Phase
	stream     Stream
	taskID     string
	finishOnce *sync.Once
}

/*
New creates a Controller. It fails when the submitter or the stream
factory is missing.
*/
func New(cfg Config) (*Controller, error) {
	if cfg.Submitter == nil {
		return nil, errors.ErrInvalidPhase.WithMessagef("controller requires a submitter")
	}
	if cfg.OpenStream == nil {
		return nil, errors.ErrInvalidPhase.WithMessagef("controller requires a stream factory")
	}
	if cfg.Store == nil {
		cfg.Store = stores.NewTaskStateStore()
	}
	return &Controller{cfg: cfg, finishOnce: &sync.Once{}}, nil
}

// Phase returns the controller's current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Store exposes the state store for snapshot reads and observers.
func (c *Controller) Store() *stores.TaskStateStore {
	return c.cfg.Store
}

// Snapshot returns the tracked task, if any.
func (c *Controller) Snapshot() (task.Task, bool) {
	return c.cfg.Store.Current()
}

/*
Start runs one submission. From Terminal the previous task is replaced;
from Submitting or Streaming it fails with ErrTaskAlreadyActive.

Submission failures are returned synchronously and never open a stream;
the store is left untouched so the caller can render a form-level error
instead of a task card. Everything after a successful submission is
reported through store snapshots only.
*/
func (c *Controller) Start(ctx context.Context, kind string, payload any, background bool) error {
	c.mu.Lock()
	if c.phase == PhaseSubmitting || c.phase == PhaseStreaming {
		c.mu.Unlock()
		return errors.ErrTaskAlreadyActive.WithMessagef("controller is %s", c.phase)
	}
	if c.phase == PhaseTerminal {
		c.reset()
	}
	c.phase = PhaseSubmitting
	c.finishOnce = &sync.Once{}
	c.mu.Unlock()

	outcome, err := c.cfg.Submitter.Submit(ctx, kind, payload, background)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.phase = PhaseTerminal
		log.Error("job submission failed", "kind", kind, "error", err)
		return err
	}

	if outcome.Inline {
		snap, serr := c.cfg.Store.SetCompletedInline(kind, outcome.Result)
		if serr != nil {
			c.phase = PhaseTerminal
			return serr
		}
		c.phase = PhaseTerminal
		c.finish(snap)
		return nil
	}

	if _, serr := c.cfg.Store.SetSubmitted(outcome.TaskID, kind); serr != nil {
		c.phase = PhaseIdle
		return serr
	}

	stream := c.cfg.OpenStream(outcome.TaskID)
	if oerr := stream.Open(ctx, outcome.TaskID, c.handleEvent, c.handleTransportError); oerr != nil {
		if _, ferr := c.cfg.Store.MarkFailed(oerr.Error()); ferr != nil {
			log.Error("failed to record stream-open failure", "error", ferr)
		}
		stream.Close()
		c.phase = PhaseTerminal
		return oerr
	}

	c.taskID = outcome.TaskID
	c.stream = stream
	c.phase = PhaseStreaming
	log.Debug("streaming task updates", "taskId", outcome.TaskID, "kind", kind)
	return nil
}

/*
Cancel requests cancellation of the streaming task. The local view
becomes Cancelled immediately and the stream closes so later events are
discarded; the backend call is best-effort and its outcome does not
change the local state. Valid only while streaming.
*/
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseStreaming {
		c.mu.Unlock()
		return errors.ErrInvalidPhase.WithMessagef("cancel is only valid while streaming, controller is %s", c.phase)
	}

	c.closeStream()
	if _, err := c.cfg.Store.MarkCancelled(); err != nil {
		log.Error("failed to mark task cancelled", "error", err)
	}
	c.phase = PhaseTerminal
	taskID := c.taskID
	c.mu.Unlock()

	// A completion racing the cancel on the backend is benign: the
	// backend stays authoritative for side effects, the local view is
	// cancelled either way.
	if err := c.cfg.Submitter.Cancel(ctx, taskID); err != nil {
		log.Warn("backend cancel request failed", "taskId", taskID, "error", err)
	}
	return nil
}

/*
Dismiss clears a terminal task and returns the controller to Idle.
*/
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseTerminal {
		return errors.ErrInvalidPhase.WithMessagef("dismiss is only valid after a terminal status, controller is %s", c.phase)
	}
	c.cfg.Store.Dismiss()
	c.reset()
	return nil
}

// handleEvent is the stream observer; it serializes event application
// through the controller's lock.
func (c *Controller) handleEvent(evt task.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseStreaming {
		log.Debug("discarding event outside streaming phase", "taskId", evt.TaskID, "phase", c.phase)
		return
	}

	snap, applied := c.cfg.Store.ApplyEvent(evt)
	if !applied || !snap.Terminal() {
		return
	}

	c.closeStream()
	c.phase = PhaseTerminal
	c.finish(snap)
}

// handleTransportError fires at most once per stream, when it drops
// before a terminal event.
func (c *Controller) handleTransportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseStreaming {
		return
	}

	log.Warn("task stream failed", "taskId", c.taskID, "error", err)
	if _, ferr := c.cfg.Store.MarkFailed(err.Error()); ferr != nil {
		log.Error("failed to record transport error", "error", ferr)
	}
	c.closeStream()
	c.phase = PhaseTerminal
}

// finish runs the post-completion effects, at most once per run and
// only for a successful completion. Called with c.mu held.
func (c *Controller) finish(snap task.Task) {
	if snap.Status != task.StatusCompleted {
		return
	}
	c.finishOnce.Do(func() {
		if c.cfg.OnCompleted != nil {
			c.cfg.OnCompleted(snap)
		}
		if c.cfg.Navigate != nil && c.cfg.CompletionPath != "" {
			c.cfg.Navigate(c.cfg.CompletionPath)
		}
	})
}

// closeStream releases the stream if present. Called with c.mu held.
func (c *Controller) closeStream() {
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			log.Debug("stream close", "error", err)
		}
		c.stream = nil
	}
}

// reset returns the controller to Idle. Called with c.mu held.
func (c *Controller) reset() {
	c.phase = PhaseIdle
	c.stream = nil
	c.taskID = ""
	c.finishOnce = &sync.Once{}
}
