package engine

import (
	"context"
	"fmt"

	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/world"
)

// DefaultClockCost is the in-world minutes a turn costs when the simulation
// call does not price it itself.
const DefaultClockCost = 10

// WorldSim resolves the physical consequences of the accepted action: time
// spent, movement, ambient changes. Its delta carries the highest merge
// precedence.
type WorldSim struct {
	client    llm.Client
	clockCost int
	logger    logging.Logger
}

// NewWorldSim builds the world-simulation stage.
func NewWorldSim(client llm.Client, clockCost int) *WorldSim {
	if clockCost <= 0 {
		clockCost = DefaultClockCost
	}
	return &WorldSim{
		client:    client,
		clockCost: clockCost,
		logger:    logging.NewComponentLogger("worldsim"),
	}
}

func (s *WorldSim) Name() string { return string(StateSimulating) }

type worldSimResponse struct {
	TimeCost      int      `json:"time_cost"`
	Location      string   `json:"location"`
	AmbientAdd    []string `json:"ambient_add"`
	AmbientRemove []string `json:"ambient_remove"`
	ActorMoves    []struct {
		ID       string `json:"id"`
		Location string `json:"location"`
	} `json:"actor_moves"`
}

func (s *WorldSim) Run(ctx context.Context, tc *TurnContext) (*world.Delta, error) {
	var resp worldSimResponse
	err := generateJSON(ctx, s.client, llm.Request{
		Instruction: "You are the physical-consequence simulator of a fictional world. " +
			"Given the world state and the player's action, decide what physically changes. " +
			"Reply with JSON only: {\"time_cost\": minutes, \"location\": \"\" or new location id, " +
			"\"ambient_add\": [tags], \"ambient_remove\": [tags], " +
			"\"actor_moves\": [{\"id\": actor, \"location\": where}]}. " +
			"Leave fields empty when nothing changes.",
		Context:     fmt.Sprintf("World: %s\nRecent events:\n%s\nAction: %s", tc.Snapshot.Summary(), renderRecent(tc.Recent), tc.Request.Action),
		Temperature: 0.3,
	}, &resp)
	if err != nil {
		return nil, err
	}

	delta := &world.Delta{
		Source:        world.SourceWorldSim,
		ClockAdvance:  resp.TimeCost,
		AmbientAdd:    resp.AmbientAdd,
		AmbientRemove: resp.AmbientRemove,
	}
	if delta.ClockAdvance <= 0 {
		delta.ClockAdvance = s.clockCost
	}
	if resp.Location != "" {
		loc := resp.Location
		delta.Location = &loc
	}
	for _, move := range resp.ActorMoves {
		if _, known := tc.Snapshot.Actor(move.ID); !known {
			s.logger.Debug("Ignoring move for unknown actor %q", move.ID)
			continue
		}
		loc := move.Location
		delta.ActorUpdates = append(delta.ActorUpdates, world.ActorUpdate{ID: move.ID, Location: &loc})
	}

	return delta, nil
}
