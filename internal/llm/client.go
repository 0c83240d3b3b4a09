// Package llm defines the generative-call boundary. The engine depends on a
// single opaque operation: Generate(instruction, context) -> text. Everything
// about providers, models and transports stays behind the Client interface,
// and pipeline stages only ever see the retry-wrapped decorator.
package llm

import (
	"context"
	"time"
)

// Request carries one generative call: the directive to follow and the
// bounded context it should be grounded in.
type Request struct {
	Instruction string
	Context     string
	Temperature float64
	// Timeout bounds this single call independently of the turn deadline.
	// Zero means the client default.
	Timeout time.Duration
}

// Client is the only contract the turn engine has with the generation
// subsystem.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}
