package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoreCreateAndGet(t *testing.T) {
	s := NewRecordStore()
	s.Create("t1", "rebuild_communities", func() {})

	rec, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, RawStatusPending, rec.Status)
	assert.Equal(t, "rebuild_communities", rec.Kind)
	assert.False(t, rec.Terminal())
	assert.False(t, rec.CreatedAt.IsZero())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestRecordStoreProgress(t *testing.T) {
	s := NewRecordStore()
	s.Create("t1", "rebuild_communities", func() {})

	rec, ok := s.SetProgress("t1", 40, "detecting communities")
	require.True(t, ok)
	assert.Equal(t, RawStatusProcessing, rec.Status)
	assert.Equal(t, 40, rec.Progress)
	assert.Equal(t, "detecting communities", rec.Message)

	_, ok = s.SetProgress("missing", 10, "")
	assert.False(t, ok)
}

func TestRecordStoreTerminalGuards(t *testing.T) {
	s := NewRecordStore()
	s.Create("t1", "rebuild_communities", func() {})

	rec, ok := s.SetCompleted("t1", json.RawMessage(`{"communities_count":12}`))
	require.True(t, ok)
	assert.Equal(t, RawStatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.True(t, rec.Terminal())

	// Terminal records accept no further transitions.
	_, ok = s.SetProgress("t1", 50, "late")
	assert.False(t, ok)
	_, ok = s.SetFailed("t1", "late failure")
	assert.False(t, ok)
	_, ok = s.SetCompleted("t1", nil)
	assert.False(t, ok)

	rec, _ = s.Get("t1")
	assert.Equal(t, RawStatusCompleted, rec.Status)
	assert.JSONEq(t, `{"communities_count":12}`, string(rec.Result))
}

func TestRecordStoreFailed(t *testing.T) {
	s := NewRecordStore()
	s.Create("t1", "ingest_memory", func() {})

	rec, ok := s.SetFailed("t1", "embedding backend unavailable")
	require.True(t, ok)
	assert.Equal(t, RawStatusFailed, rec.Status)
	assert.Equal(t, "embedding backend unavailable", rec.Error)
	assert.True(t, rec.Terminal())
}

func TestRecordStoreCancel(t *testing.T) {
	s := NewRecordStore()
	ctx, cancel := context.WithCancel(context.Background())
	s.Create("t1", "rebuild_communities", cancel)

	assert.True(t, s.Cancel("t1"))
	assert.Error(t, ctx.Err())

	// A second cancel finds nothing to do.
	assert.False(t, s.Cancel("t1"))
	assert.False(t, s.Cancel("missing"))
}

func TestRecordStoreCompletionDropsCancel(t *testing.T) {
	s := NewRecordStore()
	ctx, cancel := context.WithCancel(context.Background())
	s.Create("t1", "rebuild_communities", cancel)

	_, ok := s.SetCompleted("t1", nil)
	require.True(t, ok)

	// The cancel function is released on completion.
	assert.False(t, s.Cancel("t1"))
	assert.NoError(t, ctx.Err())
}
