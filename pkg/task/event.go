package task

import (
	"encoding/json"

	"github.com/graphmind/taskstream/pkg/errors"
)

/*
EventType names the stream events the tracking core understands. The
transport may deliver other event names; those are logged and skipped by
the stream client, never surfaced here.
*/
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

/*
KnownEventType reports whether the named transport event is one the core
decodes. Unknown names are ignored for forward compatibility.
*/
func KnownEventType(name string) bool {
	switch EventType(name) {
	case EventProgress, EventCompleted, EventFailed:
		return true
	}
	return false
}

/*
Event is a normalized stream event. Status is always a member of the
closed Status set; when the backend sent a vocabulary the core does not
recognize, Status degrades to StatusPending and RawStatus carries the
original value (it is also copied into Message when the backend sent
none, so the unknown value stays visible downstream).
*/
type Event struct {
	Type      EventType
	TaskID    string
	Status    Status
	RawStatus string
	Progress  *int
	Message   string
	Result    json.RawMessage
	Error     string
}

/*
Terminal reports whether the event carries a terminal status.
*/
func (e Event) Terminal() bool {
	return e.Status.Terminal()
}

// wireEvent is the JSON body shared by every named stream event.
type wireEvent struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Progress *int            `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

/*
DecodeEvent parses a named transport event into a normalized Event. The
event name takes precedence over the body's status field for terminal
events, since some backend versions omit the status on "completed" and
"failed" bodies. A body that is not valid JSON or is missing the task id
yields ErrMalformedEvent.
*/
func DecodeEvent(name string, data []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, errors.ErrMalformedEvent.WithMessagef("undecodable %q event: %v", name, err)
	}
	if wire.ID == "" {
		return Event{}, errors.ErrMalformedEvent.WithMessagef("%q event without task id", name).WithData(string(data))
	}

	evt := Event{
		Type:      EventType(name),
		TaskID:    wire.ID,
		RawStatus: wire.Status,
		Progress:  wire.Progress,
		Message:   wire.Message,
		Result:    wire.Result,
		Error:     wire.Error,
	}

	switch evt.Type {
	case EventCompleted:
		evt.Status = StatusCompleted
	case EventFailed:
		evt.Status = StatusFailed
		if evt.Error == "" {
			evt.Error = wire.Message
		}
	default:
		status, ok := Normalize(wire.Status)
		evt.Status = status
		if !ok && evt.Message == "" {
			evt.Message = wire.Status
		}
	}

	return evt, nil
}
