package sse

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/graphmind/taskstream/pkg/errors"
	"github.com/graphmind/taskstream/pkg/metrics"
	"github.com/graphmind/taskstream/pkg/task"
)

// rawEvent is a single Server-Sent Event as read off the wire.
type rawEvent struct {
	ID    string
	Event string
	Data  []byte
}

/*
StreamClient owns one push-subscription for one task id. It decodes and
normalizes incoming events and delivers them to exactly one observer
until the subscription closes. It never reconnects on its own; if the
stream drops before a terminal event the registered transport-error
callback fires exactly once and the client shuts down, leaving the
retry decision to its owner.
*/
type StreamClient struct {
	baseURL     string
	headers     map[string]string
	httpClient  *http.Client
	idleTimeout time.Duration
	Metrics     *metrics.StreamMetrics

	mu     sync.Mutex
	opened bool
	conn   *http.Response
	reader *bufio.Reader

	stopChan chan struct{}
	stopOnce sync.Once
	errOnce  sync.Once
	timedOut atomic.Bool
}

// Option configures a StreamClient.
type Option func(*StreamClient)

// WithHTTPClient overrides the HTTP client used for the subscription.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *StreamClient) { c.httpClient = hc }
}

// WithHeader adds a header to the subscription request.
func WithHeader(key, value string) Option {
	return func(c *StreamClient) { c.headers[key] = value }
}

// WithIdleTimeout closes the stream through the transport-error path
// when no event arrives for the given duration while the task is
// non-terminal. Zero disables the watchdog.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *StreamClient) { c.idleTimeout = d }
}

/*
NewStreamClient creates a stream client for the backend at baseURL. The
subscription endpoint is derived from the task id at Open time.
*/
func NewStreamClient(baseURL string, opts ...Option) *StreamClient {
	c := &StreamClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    make(map[string]string),
		httpClient: &http.Client{},
		Metrics:    metrics.NewStreamMetrics(),
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

/*
Open establishes the subscription for taskID and starts delivering
normalized events to onEvent. It may only be called once per instance;
a second call fails with ErrAlreadyOpen. A connection failure is
returned synchronously and the callbacks are never invoked.

On a completed or failed event the client closes its own subscription
before invoking onEvent, so at most one terminal event is ever
delivered. If the transport drops first, onTransportError fires exactly
once instead.
*/
func (c *StreamClient) Open(ctx context.Context, taskID string, onEvent func(task.Event), onTransportError func(error)) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return errors.ErrAlreadyOpen
	}
	c.opened = true
	c.mu.Unlock()

	if c.stopped() {
		return errors.ErrAlreadyOpen.WithMessagef("stream client was closed before open")
	}

	start := time.Now()
	conn, err := c.connect(ctx, taskID)
	if err != nil {
		c.Metrics.RecordConnection(false, time.Since(start))
		return errors.ErrTransport.WithMessagef("failed to open task stream: %v", err)
	}
	c.Metrics.RecordConnection(true, time.Since(start))

	c.mu.Lock()
	if c.stopped() {
		// Close raced the connect; release the transport immediately.
		conn.Body.Close()
		c.mu.Unlock()
		return errors.ErrAlreadyOpen.WithMessagef("stream client was closed before open")
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn.Body)
	c.mu.Unlock()

	go c.consume(taskID, onEvent, onTransportError)
	return nil
}

// connect issues the subscription request and validates the response.
func (c *StreamClient) connect(ctx context.Context, taskID string) (*http.Response, error) {
	url := fmt.Sprintf("%s/tasks/%s/events", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp, nil
}

// consume reads events until the stream terminates or is closed.
func (c *StreamClient) consume(taskID string, onEvent func(task.Event), onTransportError func(error)) {
	var idle *time.Timer
	if c.idleTimeout > 0 {
		idle = time.AfterFunc(c.idleTimeout, func() {
			c.timedOut.Store(true)
			c.Close()
		})
		defer idle.Stop()
	}

	for {
		raw, err := c.readEvent()
		if err != nil {
			if c.stopped() && !c.timedOut.Load() {
				// Deliberate close by the owner, nothing to report.
				return
			}
			c.Close()
			terr := errors.ErrTransport.WithMessagef("task stream dropped: %v", err)
			if c.timedOut.Load() {
				terr = errors.ErrTransport.WithMessagef("task stream idle for %s", c.idleTimeout)
			}
			c.errOnce.Do(func() {
				c.Metrics.RecordTransportError()
				log.Warn("task stream transport error", "taskId", taskID, "error", terr)
				onTransportError(terr)
			})
			return
		}

		if idle != nil {
			idle.Reset(c.idleTimeout)
		}

		if done := c.dispatch(taskID, raw, onEvent, onTransportError); done {
			return
		}
	}
}

// dispatch decodes one raw event and delivers it. It reports true when
// the subscription is finished.
func (c *StreamClient) dispatch(taskID string, raw *rawEvent, onEvent func(task.Event), onTransportError func(error)) bool {
	if raw.Event == "error" {
		c.Close()
		c.errOnce.Do(func() {
			c.Metrics.RecordTransportError()
			onTransportError(errors.ErrTransport.WithMessagef("backend stream error: %s", string(raw.Data)))
		})
		return true
	}

	if !task.KnownEventType(raw.Event) {
		log.Debug("ignoring unrecognized stream event", "taskId", taskID, "event", raw.Event)
		c.Metrics.RecordEvent(true, 0)
		return false
	}

	evt, err := task.DecodeEvent(raw.Event, raw.Data)
	if err != nil {
		log.Warn("skipping malformed stream event", "taskId", taskID, "event", raw.Event, "error", err)
		c.Metrics.RecordMalformedEvent()
		return false
	}

	if c.stopped() {
		return true
	}

	start := time.Now()
	terminal := evt.Terminal() && evt.TaskID == taskID
	if terminal {
		// Release the transport before the observer runs, so a terminal
		// event is delivered at most once.
		c.Close()
	}
	onEvent(evt)
	c.Metrics.RecordEvent(false, time.Since(start))

	return terminal
}

// readEvent reads a single SSE event off the wire.
func (c *StreamClient) readEvent() (*rawEvent, error) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	if reader == nil {
		return nil, fmt.Errorf("stream not connected")
	}

	event := &rawEvent{}
	var data strings.Builder
	inEvent := false

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimRight(line, "\n\r")

		// Empty line marks the end of an event.
		if line == "" {
			if inEvent {
				event.Data = []byte(data.String())
				return event, nil
			}
			continue
		}

		// Comment / heartbeat line, does not start or end an event.
		if strings.HasPrefix(line, ":") {
			continue
		}

		inEvent = true

		switch {
		case strings.HasPrefix(line, "id:"):
			event.ID = strings.TrimSpace(line[3:])
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteString("\n")
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

/*
Close releases the underlying transport. It is idempotent: safe to call
multiple times, from any state, including before Open. No events are
delivered after Close returns.
*/
func (c *StreamClient) Close() error {
	c.stopOnce.Do(func() { close(c.stopChan) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Body.Close()
		c.conn = nil
		c.reader = nil
		return err
	}
	return nil
}

func (c *StreamClient) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}
