package service

// The server keeps its own task records, separate from the client-side
// snapshot store: these carry the backend's raw status vocabulary
// ("pending", "processing", "completed", "failed") exactly as it goes
// out on the wire.

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Raw status vocabulary emitted by the job server.
const (
	RawStatusPending    = "pending"
	RawStatusProcessing = "processing"
	RawStatusCompleted  = "completed"
	RawStatusFailed     = "failed"
)

// TaskRecord is the server-side view of one background job.
type TaskRecord struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Terminal reports whether the record reached a final status.
func (r TaskRecord) Terminal() bool {
	return r.Status == RawStatusCompleted || r.Status == RawStatusFailed
}

// RecordStore is an in-memory, mutex-guarded store of task records.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]*TaskRecord
	cancels map[string]context.CancelFunc
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]*TaskRecord),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create registers a new pending record with its cancel function.
func (s *RecordStore) Create(id, kind string, cancel context.CancelFunc) *TaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec := &TaskRecord{
		ID:        id,
		Kind:      kind,
		Status:    RawStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[id] = rec
	s.cancels[id] = cancel
	return rec
}

// Get returns a copy of the record.
func (s *RecordStore) Get(id string) (TaskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return TaskRecord{}, false
	}
	return *rec, true
}

// SetProgress moves the record to processing with the given progress
// and step message. No-op on terminal records.
func (s *RecordStore) SetProgress(id string, progress int, message string) (TaskRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Terminal() {
		return TaskRecord{}, false
	}
	rec.Status = RawStatusProcessing
	rec.Progress = progress
	rec.Message = message
	rec.UpdatedAt = time.Now()
	return *rec, true
}

// SetCompleted performs the terminal success transition.
func (s *RecordStore) SetCompleted(id string, result json.RawMessage) (TaskRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Terminal() {
		return TaskRecord{}, false
	}
	rec.Status = RawStatusCompleted
	rec.Progress = 100
	rec.Result = result
	rec.UpdatedAt = time.Now()
	delete(s.cancels, id)
	return *rec, true
}

// SetFailed performs the terminal failure transition.
func (s *RecordStore) SetFailed(id, reason string) (TaskRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Terminal() {
		return TaskRecord{}, false
	}
	rec.Status = RawStatusFailed
	rec.Error = reason
	rec.UpdatedAt = time.Now()
	delete(s.cancels, id)
	return *rec, true
}

// Cancel invokes the record's cancel function, if the job still runs.
func (s *RecordStore) Cancel(id string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}
