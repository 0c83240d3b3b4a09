package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/history"
	"loom/internal/llm"
	"loom/internal/world"
)

func TestClipContextBoundsRequestContext(t *testing.T) {
	var captured llm.Request
	inner := llm.FuncClient(func(ctx context.Context, req llm.Request) (string, error) {
		captured = req
		return `{}`, nil
	})

	client := clipContext(inner, 16)
	long := strings.Repeat("the rain keeps falling on the tavern roof ", 50)

	_, err := client.Generate(context.Background(), llm.Request{
		Instruction: "scene director",
		Context:     long,
	})
	require.NoError(t, err)

	assert.Less(t, len(captured.Context), len(long))
	assert.LessOrEqual(t, history.CountTokens(captured.Context), 16+1) // clip plus ellipsis
	// The instruction is never clipped.
	assert.Equal(t, "scene director", captured.Instruction)
}

func TestClipContextShortContextUntouched(t *testing.T) {
	var captured llm.Request
	inner := llm.FuncClient(func(ctx context.Context, req llm.Request) (string, error) {
		captured = req
		return `{}`, nil
	})

	client := clipContext(inner, 1000)
	_, err := client.Generate(context.Background(), llm.Request{Context: "Scene: a quiet tavern."})
	require.NoError(t, err)
	assert.Equal(t, "Scene: a quiet tavern.", captured.Context)
}

func TestClipContextZeroBudgetDisablesClipping(t *testing.T) {
	inner := llm.NewScriptedClient()
	assert.Equal(t, llm.Client(inner), clipContext(inner, 0))
}

func TestNewNormalizesConfigPerField(t *testing.T) {
	store := world.NewMemoryStore(world.Snapshot{Location: "tavern"})
	eng := New(store, llm.NewScriptedClient(), Config{MaxActionChars: 9}, nil, nil)

	// A caller-supplied field survives; unset fields take the defaults.
	assert.Equal(t, 9, eng.config.MaxActionChars)
	assert.Equal(t, DefaultMaxInFlight, eng.config.MaxInFlight)
	assert.Equal(t, 45*time.Second, eng.config.ActorCallTimeout)
	assert.Equal(t, DefaultConfig().ContextTokenBudget, eng.config.ContextTokenBudget)
}
