package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw    string
		status Status
		ok     bool
	}{
		{"processing", StatusRunning, true},
		{"pending", StatusPending, true},
		{"completed", StatusCompleted, true},
		{"failed", StatusFailed, true},
		{"half-done", StatusPending, false},
		{"", StatusPending, false},
	}

	for _, tc := range cases {
		status, ok := Normalize(tc.raw)
		assert.Equal(t, tc.status, status, "raw %q", tc.raw)
		assert.Equal(t, tc.ok, ok, "raw %q", tc.raw)
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
