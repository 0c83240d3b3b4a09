package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("x"), ""), true},
		{"explicit permanent", NewPermanentError(errors.New("x"), ""), false},
		{"rate limit status", errors.New("api error: status 429 too many requests"), true},
		{"server error status", errors.New("HTTP 503: service unavailable"), true},
		{"auth status", errors.New("api error: status 401"), false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"deadline exceeded", fmt.Errorf("call failed: %w", errors.New("context deadline exceeded")), true},
		{"plain error", errors.New("something odd"), false},
		{"validation rejection", NewValidationRejected("stale_turn", "snapshot is stale"), false},
		{"malformed output", NewMalformedOutput(errors.New("bad json"), "{"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsTransientNetError(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("refused")}
	assert.True(t, IsTransient(fmt.Errorf("generate: %w", err)))
}

func TestIsPermanentPatterns(t *testing.T) {
	assert.True(t, IsPermanent(errors.New("401 Unauthorized")))
	assert.True(t, IsPermanent(errors.New("model not found")))
	assert.False(t, IsPermanent(NewTransientError(errors.New("429"), "")))
}

func TestValidationRejectedRoundTrip(t *testing.T) {
	err := NewValidationRejected("stale_turn", "request references turn 4, current is 5")
	wrapped := fmt.Errorf("gate: %w", err)

	rejected, ok := IsValidationRejected(wrapped)
	require.True(t, ok)
	assert.Equal(t, "stale_turn", rejected.Code)
	assert.Contains(t, rejected.Error(), "stale_turn")
}

func TestMalformedOutputExcerptBounded(t *testing.T) {
	raw := strings.Repeat("x", 500)
	err := NewMalformedOutput(errors.New("parse failure"), raw)
	assert.LessOrEqual(t, len(err.RawExcerpt), 203)
	assert.True(t, IsMalformedOutput(fmt.Errorf("stage: %w", err)))
}

func TestPipelineErrorCarriesStage(t *testing.T) {
	cause := &RetryExhaustedError{Attempts: 3, LastErr: errors.New("timeout")}
	err := NewPipelineError("planning", cause)

	pipeErr, ok := IsPipelineError(fmt.Errorf("turn: %w", err))
	require.True(t, ok)
	assert.Equal(t, "planning", pipeErr.Stage)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, pipeErr, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}
