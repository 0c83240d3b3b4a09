package engine

import (
	"context"
	"fmt"
	"strings"

	"loom/internal/history"
	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/world"
)

// Planner produces the scene script: the turn's narration beat, its mood and
// tension, and the ordered instructions (the directorial order) that drive
// the atmosphere pass and the actor tasks.
type Planner struct {
	client llm.Client
	logger logging.Logger
}

// NewPlanner builds the narrative-planning stage.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{
		client: client,
		logger: logging.NewComponentLogger("planner"),
	}
}

func (p *Planner) Name() string { return string(StatePlanning) }

func (p *Planner) Run(ctx context.Context, tc *TurnContext) (*world.Delta, error) {
	var script SceneScript
	err := generateJSON(ctx, p.client, llm.Request{
		Instruction: "You are the scene director of a fictional world. Given the world state, " +
			"recent events and the player's action, write the scene plan. Reply with JSON only: " +
			"{\"mood\": word, \"tension\": \"high\"|\"normal\"|\"low\", \"narration\": 1-3 sentences, " +
			"\"instructions\": [{\"target\": \"vibe\" or actor id, \"directive\": what to do}], " +
			"\"plot_upserts\": [{\"id\", \"summary\", \"status\"}], \"plot_resolved\": [thread ids]}. " +
			"Instruction order is the order the scene plays out.",
		Context:     fmt.Sprintf("World: %s\nRecent events:\n%s\nAction: %s", tc.Snapshot.Summary(), renderRecent(tc.Recent), tc.Request.Action),
		Temperature: 0.7,
	}, &script)
	if err != nil {
		return nil, err
	}

	script.Tension = normalizeTension(script.Tension)
	tc.Script = &script
	p.logger.Debug("Scene planned: mood=%s tension=%s instructions=%d", script.Mood, script.Tension, len(script.Instructions))

	delta := &world.Delta{
		Source:       world.SourcePlan,
		PlotUpserts:  script.PlotUpserts,
		PlotResolved: script.PlotResolved,
	}
	return delta, nil
}

func normalizeTension(tension string) string {
	switch strings.ToLower(strings.TrimSpace(tension)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "normal"
	}
}

func renderRecent(entries []history.Entry) string {
	if len(entries) == 0 {
		return "(nothing yet)"
	}
	var b strings.Builder
	for _, e := range entries {
		if e.Speaker != "" {
			fmt.Fprintf(&b, "[%d] %s: %s\n", e.Turn, e.Speaker, e.Text)
		} else {
			fmt.Fprintf(&b, "[%d] %s\n", e.Turn, e.Text)
		}
	}
	return b.String()
}
