package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/graphmind/taskstream/pkg/errors"
)

/*
SubmitOutcome is the discriminated result of a job submission. Either
the backend accepted the job for background execution and assigned a
task id, or it completed the work inline and returned the result with
no id (Inline is set).
*/
type SubmitOutcome struct {
	TaskID string
	Inline bool
	Result json.RawMessage
}

/*
Submitter issues job-creating and job-cancelling calls against the
backend. It performs no state mutation of its own; the lifecycle
controller owns all task state transitions.
*/
type Submitter struct {
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithHTTPClient overrides the HTTP client used for backend calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Submitter) { s.httpClient = hc }
}

// WithHeader adds a header to every backend call.
func WithHeader(key, value string) Option {
	return func(s *Submitter) { s.headers[key] = value }
}

// NewSubmitter creates a submitter for the backend at baseURL.
func NewSubmitter(baseURL string, opts ...Option) *Submitter {
	s := &Submitter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// submitResponse is the backend's answer to a job submission.
type submitResponse struct {
	TaskID string          `json:"task_id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

/*
Submit asks the backend to start a job of the given kind. The payload is
opaque to this layer and marshalled as the request body. With background
set the backend is asked to run the job asynchronously and answer with a
task id; without it the backend may complete the work inline and return
the result directly.

A network or validation failure surfaces as ErrSubmissionFailed; the
caller must not open a stream in that case.
*/
func (s *Submitter) Submit(ctx context.Context, kind string, payload any, background bool) (SubmitOutcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitOutcome{}, errors.ErrSubmissionFailed.WithMessagef("unencodable payload: %v", err)
	}

	url := fmt.Sprintf("%s/jobs/%s?background=%t", s.baseURL, kind, background)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SubmitOutcome{}, errors.ErrSubmissionFailed.WithMessagef("invalid request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	log.Debug("submitting job", "kind", kind, "background", background)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SubmitOutcome{}, errors.ErrSubmissionFailed.WithMessagef("job submission failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SubmitOutcome{}, errors.ErrSubmissionFailed.WithMessagef("unreadable response: %v", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var decoded submitResponse
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Error != "" {
			return SubmitOutcome{}, errors.ErrSubmissionFailed.WithMessagef("%s", decoded.Error)
		}
		return SubmitOutcome{}, errors.ErrSubmissionFailed.WithMessagef(
			"backend answered %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded submitResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return SubmitOutcome{}, errors.ErrSubmissionFailed.WithMessagef("undecodable response: %v", err)
	}

	if decoded.TaskID != "" {
		return SubmitOutcome{TaskID: decoded.TaskID}, nil
	}
	// No task id: the backend completed the work inline.
	return SubmitOutcome{Inline: true, Result: decoded.Result}, nil
}

/*
Cancel asks the backend to stop the task. Cancellation is cooperative;
the backend remains authoritative for whether in-flight work actually
stopped.
*/
func (s *Submitter) Cancel(ctx context.Context, taskID string) error {
	url := fmt.Sprintf("%s/tasks/%s/cancel", s.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
