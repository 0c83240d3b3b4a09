package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FuncClient adapts a plain function to the Client interface.
type FuncClient func(ctx context.Context, req Request) (string, error)

func (f FuncClient) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func (f FuncClient) Model() string { return "func" }

// ScriptedClient returns canned responses keyed by instruction substrings.
// Tests and the offline play mode use it to exercise the full pipeline
// without a generation backend.
type ScriptedClient struct {
	mu       sync.Mutex
	rules    []scriptRule
	fallback string
	calls    []Request
}

type scriptRule struct {
	match    string
	response string
	err      error
	// remaining < 0 means the rule never expires.
	remaining int
}

// NewScriptedClient creates a scripted client with a generic fallback
// response.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{fallback: `{}`}
}

// Respond registers a canned response for any request whose instruction
// contains match. Rules are checked in registration order.
func (c *ScriptedClient) Respond(match, response string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, scriptRule{match: match, response: response, remaining: -1})
	return c
}

// RespondOnce registers a response consumed by a single matching call.
// Subsequent calls fall through to later rules, which lets tests script
// fail-then-succeed sequences.
func (c *ScriptedClient) RespondOnce(match, response string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, scriptRule{match: match, response: response, remaining: 1})
	return c
}

// FailWith registers an error for any request whose instruction contains
// match.
func (c *ScriptedClient) FailWith(match string, err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, scriptRule{match: match, err: err, remaining: -1})
	return c
}

// FailOnce registers an error consumed by a single matching call.
func (c *ScriptedClient) FailOnce(match string, err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, scriptRule{match: match, err: err, remaining: 1})
	return c
}

// SetFallback replaces the response used when no rule matches.
func (c *ScriptedClient) SetFallback(response string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = response
	return c
}

// Generate matches the instruction against the scripted rules.
func (c *ScriptedClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)

	for i := range c.rules {
		rule := &c.rules[i]
		if rule.remaining == 0 {
			continue
		}
		if !strings.Contains(req.Instruction, rule.match) {
			continue
		}
		if rule.remaining > 0 {
			rule.remaining--
		}
		if rule.err != nil {
			return "", rule.err
		}
		return rule.response, nil
	}

	if c.fallback != "" {
		return c.fallback, nil
	}
	return "", fmt.Errorf("scripted client: no rule matches instruction %q", truncate(req.Instruction, 80))
}

func (c *ScriptedClient) Model() string { return "scripted" }

// Calls returns a copy of every request seen so far.
func (c *ScriptedClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many requests matched the given instruction
// substring.
func (c *ScriptedClient) CallCount(match string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, call := range c.calls {
		if strings.Contains(call.Instruction, match) {
			count++
		}
	}
	return count
}
