package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loomerrors "loom/internal/errors"
	"loom/internal/llm"
	"loom/internal/world"
)

func gateContext(action string, turn int) *TurnContext {
	return &TurnContext{
		Request:  TurnRequest{ID: "req", Action: action, Turn: turn},
		Snapshot: world.Snapshot{Turn: 0, Location: "tavern"},
	}
}

func TestGateRejectsOverlongAction(t *testing.T) {
	gate := NewGate(nil, 10)

	_, err := gate.Run(context.Background(), gateContext(strings.Repeat("x", 11), 0))
	require.Error(t, err)

	rejected, ok := loomerrors.IsValidationRejected(err)
	require.True(t, ok)
	assert.Equal(t, "action_too_long", rejected.Code)
}

func TestGateLengthBoundCountsRunes(t *testing.T) {
	gate := NewGate(nil, 10)

	// Ten multi-byte runes are within a ten-rune bound.
	_, err := gate.Run(context.Background(), gateContext(strings.Repeat("雨", 10), 0))
	assert.NoError(t, err)
}

func TestGateNilClientSkipsLogicCheck(t *testing.T) {
	gate := NewGate(nil, 0)

	delta, err := gate.Run(context.Background(), gateContext("I sit down", 0))
	assert.NoError(t, err)
	assert.Nil(t, delta)
}

func TestGateWarningsAcceptedAndRecorded(t *testing.T) {
	client := llm.NewScriptedClient().
		Respond("check a player's declared action", `{"is_valid": true, "warnings": ["the hour is very late"]}`)
	gate := NewGate(client, 0)

	tc := gateContext("I order breakfast", 0)
	_, err := gate.Run(context.Background(), tc)
	require.NoError(t, err)

	require.Len(t, tc.Warnings, 1)
	assert.Equal(t, "validation_warning", tc.Warnings[0].Code)
	assert.Contains(t, tc.Warnings[0].Message, "late")
}
