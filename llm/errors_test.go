package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	transient := NewTransientError(base)
	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))
	assert.ErrorIs(t, transient, base)

	fatal := NewFatalError(base)
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))
	assert.ErrorIs(t, fatal, base)
}

func TestErrorClassification_Wrapped(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"))
	wrapped := fmt.Errorf("invoke writing agent: %w", inner)

	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsFatal(wrapped))
}

func TestAgentUnavailableError(t *testing.T) {
	last := errors.New("connection refused")
	err := &AgentUnavailableError{Capability: "research", Last: last}

	assert.True(t, IsAgentUnavailable(err))
	assert.Contains(t, err.Error(), "research")
	assert.ErrorIs(t, err, last)

	wrapped := fmt.Errorf("topic agent: %w", error(err))
	assert.True(t, IsAgentUnavailable(wrapped))
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", 429, true},
		{"server error", 500, true},
		{"bad gateway", 502, true},
		{"unauthorized", 401, false},
		{"forbidden", 403, false},
		{"bad request", 400, false},
		{"not found", 404, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyHTTPError(tt.status, []byte("details"))
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, !tt.transient, IsFatal(err))
		})
	}
}
