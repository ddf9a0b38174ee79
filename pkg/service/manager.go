package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/graphmind/taskstream/pkg/errors"
	"github.com/graphmind/taskstream/pkg/service/sse"
)

// eventBody is the JSON payload of every named stream event, carrying
// the backend's raw status vocabulary.
type eventBody struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Progress *int            `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

/*
Manager runs registered job kinds and publishes their lifecycle to the
stream broker. Background submissions get a task id and run in their
own goroutine; foreground submissions run inline and return the result
with no id, which is how the protocol signals inline completion.
*/
type Manager struct {
	store   *RecordStore
	broker  *sse.Broker
	runners map[string]Runner
}

func NewManager(broker *sse.Broker) *Manager {
	return &Manager{
		store:   NewRecordStore(),
		broker:  broker,
		runners: make(map[string]Runner),
	}
}

// Register adds a runner for its job kind, replacing any previous one.
func (m *Manager) Register(r Runner) {
	m.runners[r.Kind()] = r
}

// Get returns the record of a background task.
func (m *Manager) Get(id string) (TaskRecord, bool) {
	return m.store.Get(id)
}

/*
Submit starts a job. With background set it returns a task id and runs
the job asynchronously; otherwise it runs the job to completion on the
calling goroutine and returns the result directly.
*/
func (m *Manager) Submit(ctx context.Context, kind string, payload json.RawMessage, background bool) (string, json.RawMessage, error) {
	runner, ok := m.runners[kind]
	if !ok {
		return "", nil, errors.ErrUnknownKind.WithMessagef("no runner registered for %q", kind)
	}

	if !background {
		start := time.Now()
		result, err := runner.Run(ctx, payload, func(int, string) {})
		status := RawStatusCompleted
		if err != nil {
			status = RawStatusFailed
		}
		jobDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
		return "", result, err
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	m.store.Create(id, kind, cancel)
	jobsStarted.WithLabelValues(kind).Inc()
	log.Info("job started", "taskId", id, "kind", kind)

	go m.run(runCtx, id, runner, payload)
	return id, nil, nil
}

/*
Cancel requests cooperative cancellation of a running task. Terminal
tasks are a no-op.
*/
func (m *Manager) Cancel(id string) error {
	rec, ok := m.store.Get(id)
	if !ok {
		return errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}
	if rec.Terminal() {
		return nil
	}
	m.store.Cancel(id)
	return nil
}

// run executes one background job and publishes its lifecycle.
func (m *Manager) run(ctx context.Context, id string, runner Runner, payload json.RawMessage) {
	start := time.Now()

	report := func(progress int, message string) {
		rec, ok := m.store.SetProgress(id, progress, message)
		if !ok {
			return
		}
		p := rec.Progress
		m.publish("progress", eventBody{
			ID:       id,
			Status:   rec.Status,
			Progress: &p,
			Message:  rec.Message,
		})
	}

	result, err := runner.Run(ctx, payload, report)

	switch {
	case err != nil && ctx.Err() != nil:
		// Cooperative cancellation surfaces as a failed terminal event;
		// the cancelling client stopped listening already.
		rec, _ := m.store.SetFailed(id, "task cancelled")
		jobsFailed.WithLabelValues(rec.Kind).Inc()
		jobDuration.WithLabelValues(rec.Kind, RawStatusFailed).Observe(time.Since(start).Seconds())
		log.Info("job cancelled", "taskId", id)
		m.publish("failed", eventBody{ID: id, Status: rec.Status, Error: rec.Error})

	case err != nil:
		rec, _ := m.store.SetFailed(id, err.Error())
		jobsFailed.WithLabelValues(rec.Kind).Inc()
		jobDuration.WithLabelValues(rec.Kind, RawStatusFailed).Observe(time.Since(start).Seconds())
		log.Error("job failed", "taskId", id, "error", err)
		m.publish("failed", eventBody{ID: id, Status: rec.Status, Error: rec.Error})

	default:
		rec, _ := m.store.SetCompleted(id, result)
		jobsCompleted.WithLabelValues(rec.Kind).Inc()
		jobDuration.WithLabelValues(rec.Kind, RawStatusCompleted).Observe(time.Since(start).Seconds())
		log.Info("job completed", "taskId", id, "duration", time.Since(start))
		m.publish("completed", eventBody{ID: id, Status: rec.Status, Result: rec.Result})
	}

	m.broker.CloseTopic(id)
}

func (m *Manager) publish(event string, body eventBody) {
	if err := m.broker.Publish(body.ID, event, body); err != nil {
		log.Error("failed to publish stream event", "taskId", body.ID, "event", event, "error", err)
	}
}

/*
ServeStream streams a task's events to one HTTP client. A task that is
already terminal gets its terminal event replayed immediately, so late
subscribers still observe exactly one terminal event.
*/
func (m *Manager) ServeStream(id string, w http.ResponseWriter, r *http.Request) {
	rec, ok := m.store.Get(id)
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	if rec.Terminal() {
		replayTerminal(w, rec)
		return
	}

	streamClients.Inc()
	defer streamClients.Dec()

	if !m.broker.Subscribe(id, w, r) {
		// The topic closed between the record lookup and the
		// subscription; replay the terminal state instead.
		if rec, ok := m.store.Get(id); ok && rec.Terminal() {
			replayTerminal(w, rec)
		}
		return
	}

	// A terminal event published right before the subscription
	// registered may have been missed; re-send it. The client treats
	// duplicate terminal events as no-ops.
	if rec, ok := m.store.Get(id); ok && rec.Terminal() {
		writeTerminalEvent(w, rec)
	}
}

// replayTerminal opens a fresh SSE response carrying only the terminal
// event of a finished task.
func replayTerminal(w http.ResponseWriter, rec TaskRecord) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	writeTerminalEvent(w, rec)
}

// writeTerminalEvent writes the terminal event of a finished task onto
// an already-open SSE response.
func writeTerminalEvent(w http.ResponseWriter, rec TaskRecord) {
	event := "completed"
	body := eventBody{ID: rec.ID, Status: rec.Status, Result: rec.Result}
	if rec.Status == RawStatusFailed {
		event = "failed"
		body = eventBody{ID: rec.ID, Status: rec.Status, Error: rec.Error}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	_, _ = io.WriteString(w, "event: "+event+"\ndata: "+string(data)+"\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
