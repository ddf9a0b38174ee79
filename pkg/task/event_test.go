package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/taskstream/pkg/errors"
)

func TestDecodeProgressEvent(t *testing.T) {
	evt, err := DecodeEvent("progress", []byte(`{"id":"t1","status":"processing","progress":40,"message":"scoring relations"}`))
	require.NoError(t, err)

	assert.Equal(t, EventProgress, evt.Type)
	assert.Equal(t, "t1", evt.TaskID)
	assert.Equal(t, StatusRunning, evt.Status)
	assert.Equal(t, "processing", evt.RawStatus)
	require.NotNil(t, evt.Progress)
	assert.Equal(t, 40, *evt.Progress)
	assert.Equal(t, "scoring relations", evt.Message)
}

func TestDecodeCompletedEvent(t *testing.T) {
	evt, err := DecodeEvent("completed", []byte(`{"id":"t1","status":"completed","result":{"communities_count":12}}`))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, evt.Status)
	assert.True(t, evt.Terminal())
	assert.JSONEq(t, `{"communities_count":12}`, string(evt.Result))
}

func TestDecodeCompletedEventWithoutStatus(t *testing.T) {
	// Some backend versions omit the status on terminal bodies; the
	// event name decides.
	evt, err := DecodeEvent("completed", []byte(`{"id":"t1"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, evt.Status)
}

func TestDecodeFailedEventFallsBackToMessage(t *testing.T) {
	evt, err := DecodeEvent("failed", []byte(`{"id":"t1","status":"failed","message":"graph unavailable"}`))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, evt.Status)
	assert.Equal(t, "graph unavailable", evt.Error)
}

func TestDecodeUnknownStatusDegradesLeniently(t *testing.T) {
	evt, err := DecodeEvent("progress", []byte(`{"id":"t1","status":"half-done"}`))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, evt.Status)
	assert.Equal(t, "half-done", evt.RawStatus)
	// The raw value stays visible downstream.
	assert.Equal(t, "half-done", evt.Message)
}

func TestDecodeUnknownStatusKeepsExplicitMessage(t *testing.T) {
	evt, err := DecodeEvent("progress", []byte(`{"id":"t1","status":"half-done","message":"still going"}`))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, evt.Status)
	assert.Equal(t, "still going", evt.Message)
	assert.Equal(t, "half-done", evt.RawStatus)
}

func TestDecodeMalformedEvents(t *testing.T) {
	_, err := DecodeEvent("progress", []byte(`{"status":"processing"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedEvent)

	_, err = DecodeEvent("progress", []byte(`not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedEvent)
}

func TestKnownEventType(t *testing.T) {
	assert.True(t, KnownEventType("progress"))
	assert.True(t, KnownEventType("completed"))
	assert.True(t, KnownEventType("failed"))
	assert.False(t, KnownEventType("artifact"))
	assert.False(t, KnownEventType(""))
}
