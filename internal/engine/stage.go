package engine

import (
	"context"

	"loom/internal/history"
	"loom/internal/llm"
	"loom/internal/parser"
	"loom/internal/world"
)

// Stage is one pipeline step: it reads the turn context and proposes a delta.
// A nil delta means the stage changes nothing. Stages never mutate the
// snapshot and never call the generation client except through the
// retry-wrapped decorator they were constructed with.
type Stage interface {
	Name() string
	Run(ctx context.Context, tc *TurnContext) (*world.Delta, error)
}

// clipClient bounds the context of every generative call to a token budget.
// Instructions are never clipped; only the assembled context can grow without
// bound as the world accumulates history.
type clipClient struct {
	inner  llm.Client
	budget int
}

// clipContext wraps client so Request.Context stays within budget tokens.
func clipContext(client llm.Client, budget int) llm.Client {
	if budget <= 0 {
		return client
	}
	return clipClient{inner: client, budget: budget}
}

func (c clipClient) Generate(ctx context.Context, req llm.Request) (string, error) {
	req.Context = history.ClipToTokens(req.Context, c.budget)
	return c.inner.Generate(ctx, req)
}

func (c clipClient) Model() string { return c.inner.Model() }

// generateJSON issues one generative call and decodes the structured output.
// A malformed response gets exactly one regeneration before the failure is
// terminal for this call.
func generateJSON(ctx context.Context, client llm.Client, req llm.Request, v any) error {
	raw, err := client.Generate(ctx, req)
	if err != nil {
		return err
	}

	decodeErr := parser.Decode(raw, v)
	if decodeErr == nil {
		return nil
	}

	raw, err = client.Generate(ctx, req)
	if err != nil {
		return err
	}
	return parser.Decode(raw, v)
}
