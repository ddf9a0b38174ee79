package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// message is one named event queued for a subscriber.
type message struct {
	event string
	data  []byte
}

/*
Broker fans task events out to the HTTP clients subscribed to each task.
Events are written as named SSE messages:

	event: progress
	data: {json}

Closing a task's topic ends every subscriber's stream after the queued
events have been flushed, which is how a terminal event terminates the
HTTP response.
*/
type Broker struct {
	mu       sync.RWMutex
	topics   map[string]map[chan message]struct{}
	done     map[string]struct{}
	closed   bool
	testMode bool
}

/*
NewBroker creates an empty Broker.
*/
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]map[chan message]struct{}),
		done:   make(map[string]struct{}),
	}
}

/*
NewTestBroker creates a broker with a fast heartbeat for tests.
*/
func NewTestBroker() *Broker {
	return &Broker{
		topics:   make(map[string]map[chan message]struct{}),
		done:     make(map[string]struct{}),
		testMode: true,
	}
}

/*
Subscribe upgrades the HTTP connection to an SSE stream for one task and
blocks until the topic closes or the client disconnects. It reports
false without writing anything when the topic was already closed, so
the caller can replay the task's terminal state instead.
*/
func (broker *Broker) Subscribe(taskID string, w http.ResponseWriter, r *http.Request) bool {
	flusher, ok := w.(http.Flusher)

	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return false
	}

	ch := make(chan message, 16)
	broker.mu.Lock()

	if broker.closed {
		broker.mu.Unlock()
		return false
	}
	if _, finished := broker.done[taskID]; finished {
		broker.mu.Unlock()
		return false
	}

	subs, ok := broker.topics[taskID]
	if !ok {
		subs = make(map[chan message]struct{})
		broker.topics[taskID] = subs
	}
	subs[ch] = struct{}{}
	broker.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// heartbeat ticker to keep the connection alive through proxies.
	tickerInterval := 25 * time.Second

	if broker.testMode {
		tickerInterval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(tickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			broker.remove(taskID, ch)
			return true
		case msg, open := <-ch:
			if !open {
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.event, msg.data)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

/*
Publish marshals v to JSON and queues it as a named event for every
subscriber of the task. Slow clients drop messages rather than blocking
the publisher.
*/
func (broker *Broker) Publish(taskID, event string, v any) error {
	data, err := json.Marshal(v)

	if err != nil {
		return err
	}

	broker.mu.RLock()
	defer broker.mu.RUnlock()

	if broker.closed {
		return nil
	}

	for ch := range broker.topics[taskID] {
		select {
		case ch <- message{event: event, data: data}:
		default:
			// slow client - drop message to avoid blocking.
		}
	}

	return nil
}

/*
CloseTopic ends every subscriber stream for the task once their queued
events have been delivered.
*/
func (broker *Broker) CloseTopic(taskID string) {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	for ch := range broker.topics[taskID] {
		close(ch)
	}
	delete(broker.topics, taskID)
	broker.done[taskID] = struct{}{}
}

/*
Subscribers reports the number of clients currently subscribed to the
task.
*/
func (broker *Broker) Subscribers(taskID string) int {
	broker.mu.RLock()
	defer broker.mu.RUnlock()
	return len(broker.topics[taskID])
}

/*
Close disconnects all clients and prevents further subscriptions.
*/
func (broker *Broker) Close() {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.closed {
		return
	}

	broker.closed = true

	for _, subs := range broker.topics {
		for ch := range subs {
			close(ch)
		}
	}
	broker.topics = make(map[string]map[chan message]struct{})
}

// remove drops one subscriber from a topic.
func (broker *Broker) remove(taskID string, ch chan message) {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if subs, ok := broker.topics[taskID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(broker.topics, taskID)
		}
	}
}
