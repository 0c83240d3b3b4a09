package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	loomerrors "loom/internal/errors"
	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/world"
)

// DefaultMaxActionChars bounds the player action length.
const DefaultMaxActionChars = 500

// Gate validates the turn request before it can affect any state. Local
// checks (staleness, emptiness, length) never spend a generative call; the
// logic check delegates to one external validation call.
type Gate struct {
	client         llm.Client
	maxActionChars int
	logger         logging.Logger
}

// NewGate builds the input gate. client may be nil to skip the external
// logic check (play mode against an offline client configures this).
func NewGate(client llm.Client, maxActionChars int) *Gate {
	if maxActionChars <= 0 {
		maxActionChars = DefaultMaxActionChars
	}
	return &Gate{
		client:         client,
		maxActionChars: maxActionChars,
		logger:         logging.NewComponentLogger("gate"),
	}
}

func (g *Gate) Name() string { return string(StateGating) }

type validationVerdict struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Run accepts or rejects the request. On rejection the returned error is a
// ValidationRejectedError and nothing downstream runs.
func (g *Gate) Run(ctx context.Context, tc *TurnContext) (*world.Delta, error) {
	req := tc.Request

	if req.Turn != tc.Snapshot.Turn {
		return nil, loomerrors.NewValidationRejected("stale_turn",
			fmt.Sprintf("action was issued against turn %d but the world is at turn %d", req.Turn, tc.Snapshot.Turn))
	}

	action := strings.TrimSpace(req.Action)
	if action == "" {
		return nil, loomerrors.NewValidationRejected("empty_action", "the action text is empty")
	}
	if utf8.RuneCountInString(action) > g.maxActionChars {
		return nil, loomerrors.NewValidationRejected("action_too_long",
			fmt.Sprintf("the action exceeds the %d character limit", g.maxActionChars))
	}

	if g.client == nil {
		return nil, nil
	}

	var verdict validationVerdict
	err := generateJSON(ctx, g.client, llm.Request{
		Instruction: "You check a player's declared action against the current world state. " +
			"Reply with JSON only: {\"is_valid\": bool, \"errors\": [string], \"warnings\": [string]}. " +
			"Errors are contradictions with the world (absent objects, impossible references); " +
			"warnings are oddities the world can absorb.",
		Context:     fmt.Sprintf("World: %s\nAction: %s", tc.Snapshot.Summary(), action),
		Temperature: 0.1,
	}, &verdict)
	if err != nil {
		return nil, err
	}

	if !verdict.IsValid {
		reason := "the action contradicts the current world state"
		if len(verdict.Errors) > 0 {
			reason = strings.Join(verdict.Errors, "; ")
		}
		return nil, loomerrors.NewValidationRejected("contradiction", reason)
	}

	for _, warning := range verdict.Warnings {
		g.logger.Debug("Validation warning for %q: %s", req.ID, warning)
		tc.Warnings = append(tc.Warnings, Warning{Code: "validation_warning", Message: warning})
	}

	return nil, nil
}
