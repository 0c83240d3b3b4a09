package engine

import (
	"context"
	"fmt"

	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/world"
)

// Atmosphere renders the sensory layer of the scene: a short environmental
// description plus the replacement set of ambient tags. It follows the
// planner's mood and the script's "vibe" directive when one exists.
type Atmosphere struct {
	client llm.Client
	logger logging.Logger
}

// NewAtmosphere builds the atmosphere stage.
func NewAtmosphere(client llm.Client) *Atmosphere {
	return &Atmosphere{
		client: client,
		logger: logging.NewComponentLogger("atmosphere"),
	}
}

func (a *Atmosphere) Name() string { return string(StateAtmosphere) }

type atmosphereResponse struct {
	Description string   `json:"description"`
	AmbientSet  []string `json:"ambient_set"`
}

func (a *Atmosphere) Run(ctx context.Context, tc *TurnContext) (*world.Delta, error) {
	mood := "neutral"
	directive := ""
	if tc.Script != nil {
		if tc.Script.Mood != "" {
			mood = tc.Script.Mood
		}
		for _, instr := range tc.Script.Instructions {
			if instr.Target == "vibe" {
				directive = instr.Directive
				break
			}
		}
	}

	var resp atmosphereResponse
	err := generateJSON(ctx, a.client, llm.Request{
		Instruction: "You paint the sensory atmosphere of a scene in a fictional world. " +
			"Reply with JSON only: {\"description\": 1-2 sentences, \"ambient_set\": [tags]}. " +
			"ambient_set fully replaces the previous ambient tags.",
		Context:     fmt.Sprintf("World: %s\nMood: %s\nDirective: %s", tc.Snapshot.Summary(), mood, directive),
		Temperature: 0.8,
	}, &resp)
	if err != nil {
		return nil, err
	}

	delta := &world.Delta{Source: world.SourceAtmosphere}
	if resp.AmbientSet != nil {
		delta.AmbientSet = resp.AmbientSet
	}
	tc.Atmosphere = resp.Description

	return delta, nil
}
