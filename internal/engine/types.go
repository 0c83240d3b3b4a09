// Package engine is the turn orchestration core: a fixed pipeline of stages
// that validates the player's action, runs the world-simulation, planning and
// atmosphere passes sequentially, fans out the selected cast in parallel, and
// commits exactly one merged delta per turn.
package engine

import (
	"loom/internal/history"
	"loom/internal/world"
)

// State is one node of the per-turn pipeline state machine.
type State string

const (
	StateGating      State = "gating"
	StateSimulating  State = "simulating"
	StatePlanning    State = "planning"
	StateAtmosphere  State = "atmosphere"
	StateCasting     State = "casting"
	StateActing      State = "acting"
	StateAggregating State = "aggregating"

	// Terminal states.
	StateCommitted State = "committed"
	StateRejected  State = "rejected"
	StateFailed    State = "failed"
)

// TurnRequest is the player's free-text action plus the snapshot turn it was
// issued against, used for staleness detection at the gate.
type TurnRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Turn   int    `json:"turn"`
}

// SceneInstruction is one ordered entry of the scene script. Target is either
// an actor id or "vibe" for the atmosphere pass. Instruction order is the
// directorial order the aggregator preserves.
type SceneInstruction struct {
	Target    string `json:"target"`
	Directive string `json:"directive"`
}

// SceneScript is the narrative plan for one turn.
type SceneScript struct {
	Mood         string             `json:"mood"`
	Tension      string             `json:"tension"` // high, normal, low
	Narration    string             `json:"narration"`
	Instructions []SceneInstruction `json:"instructions"`
	PlotUpserts  []world.PlotThread `json:"plot_upserts"`
	PlotResolved []string           `json:"plot_resolved"`
}

// ActorTask is the instruction card for one cast member this turn. Tasks are
// built during casting and discarded after the turn.
type ActorTask struct {
	ActorID   string
	Name      string
	Persona   string
	Directive string
	Dialogue  []history.Entry
	Scene     string
	Order     int // directorial order
}

// ActorOutput is one actor's contribution to the turn.
type ActorOutput struct {
	ActorID  string `json:"actor_id"`
	Name     string `json:"name"`
	Dialogue string `json:"dialogue"`
	Order    int    `json:"-"`
}

// Warning records a recovered, non-fatal problem, surfaced alongside the
// committed turn.
type Warning struct {
	Code    string `json:"code"` // partial_failure, validation_warning
	ActorID string `json:"actor_id,omitempty"`
	Message string `json:"message"`
}

// NarrationEntry is one ordered line of the turn's output log.
type NarrationEntry struct {
	Kind    string `json:"kind"` // narration, atmosphere, dialogue
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// TurnResult is the terminal outcome of one turn.
type TurnResult struct {
	RequestID       string           `json:"request_id"`
	State           State            `json:"state"`
	Turn            int              `json:"turn"`
	Narration       string           `json:"narration"`
	Entries         []NarrationEntry `json:"entries"`
	ActorOutputs    []ActorOutput    `json:"actor_outputs"`
	SnapshotSummary string           `json:"snapshot_summary"`
	Warnings        []Warning        `json:"warnings,omitempty"`
	Rejected        string           `json:"rejected,omitempty"` // rejection reason when State == StateRejected
}

// TurnContext carries the per-turn working set between stages. Stages read
// the committed snapshot and append deltas; nothing here outlives the turn.
type TurnContext struct {
	Request  TurnRequest
	Snapshot world.Snapshot
	Recent   []history.Entry // bounded narration history window

	Script     *SceneScript
	Atmosphere string
	Cast       []world.ActorState
	Tasks      []ActorTask
	Deltas     []world.Delta
	Outputs    []ActorOutput
	Warnings   []Warning
}
