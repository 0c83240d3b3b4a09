package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	loomerrors "loom/internal/errors"
	"loom/internal/history"
	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/observability"
	"loom/internal/world"
)

// Config tunes the turn pipeline.
type Config struct {
	MaxActionChars   int
	MaxInFlight      int
	ActorCallTimeout time.Duration
	ClockCost        int // default in-world minutes per turn

	// ContextTokenBudget bounds the context of every generative call.
	ContextTokenBudget int

	// Bounds for the narration history window handed to stages.
	HistoryMaxEntries int
	HistoryMaxChars   int

	// Bounds for the per-actor dialogue window.
	DialogueMaxEntries int
	DialogueMaxChars   int

	AuditMaxEntries int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		MaxActionChars:     DefaultMaxActionChars,
		MaxInFlight:        DefaultMaxInFlight,
		ActorCallTimeout:   45 * time.Second,
		ClockCost:          DefaultClockCost,
		ContextTokenBudget: 3000,
		HistoryMaxEntries:  12,
		HistoryMaxChars:    4000,
		DialogueMaxEntries: 8,
		DialogueMaxChars:   2000,
		AuditMaxEntries:    256,
	}
}

// normalized fills unset fields from the defaults, keeping every field the
// caller did set.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxActionChars <= 0 {
		c.MaxActionChars = d.MaxActionChars
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.ActorCallTimeout <= 0 {
		c.ActorCallTimeout = d.ActorCallTimeout
	}
	if c.ClockCost <= 0 {
		c.ClockCost = d.ClockCost
	}
	if c.ContextTokenBudget <= 0 {
		c.ContextTokenBudget = d.ContextTokenBudget
	}
	if c.HistoryMaxEntries <= 0 {
		c.HistoryMaxEntries = d.HistoryMaxEntries
	}
	if c.HistoryMaxChars <= 0 {
		c.HistoryMaxChars = d.HistoryMaxChars
	}
	if c.DialogueMaxEntries <= 0 {
		c.DialogueMaxEntries = d.DialogueMaxEntries
	}
	if c.DialogueMaxChars <= 0 {
		c.DialogueMaxChars = d.DialogueMaxChars
	}
	if c.AuditMaxEntries <= 0 {
		c.AuditMaxEntries = d.AuditMaxEntries
	}
	return c
}

// Engine processes turns one at a time against a single Store. Concurrency
// exists only inside the actor pool; turn t+1 cannot start until turn t has
// reached a terminal state.
type Engine struct {
	config  Config
	store   world.Store
	gate    *Gate
	stages  []Stage // worldsim, planner, atmosphere, in pipeline order
	pool    *ActorPool
	audit   *AuditLog
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider
	logger  logging.Logger

	mu  sync.Mutex // serializes whole turns
	log []history.Entry
}

// New wires the pipeline. client must already be retry-wrapped; it is the
// only path any stage uses to reach the generation subsystem.
func New(store world.Store, client llm.Client, config Config, metrics *observability.MetricsCollector, tracer *observability.TracerProvider) *Engine {
	config = config.normalized()
	client = clipContext(client, config.ContextTokenBudget)
	if tracer == nil {
		tracer, _ = observability.NewTracerProvider(observability.TracingConfig{})
	}

	return &Engine{
		config: config,
		store:  store,
		gate:   NewGate(client, config.MaxActionChars),
		stages: []Stage{
			NewWorldSim(client, config.ClockCost),
			NewPlanner(client),
			NewAtmosphere(client),
		},
		pool:    NewActorPool(client, config.MaxInFlight, config.ActorCallTimeout, metrics),
		audit:   NewAuditLog(config.AuditMaxEntries),
		metrics: metrics,
		tracer:  tracer,
		logger:  logging.NewComponentLogger("engine"),
	}
}

// Store exposes the snapshot store for read paths (state, history, restore).
func (e *Engine) Store() world.Store { return e.store }

// Audit exposes the envelope log for the live feed.
func (e *Engine) Audit() *AuditLog { return e.audit }

// RunTurn drives one request through the pipeline to a terminal state.
// A gate rejection returns a Rejected result with err == nil; a required
// stage exhausting its retries returns a PipelineError and leaves the store
// untouched, so the caller may retry the identical request.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := time.Now()

	tc := &TurnContext{
		Request:  req,
		Snapshot: e.store.Current(),
		Recent:   history.Window(e.log, e.config.HistoryMaxEntries, e.config.HistoryMaxChars),
	}
	turn := tc.Snapshot.Turn

	result, err := e.process(ctx, tc)

	state := StateFailed
	if result != nil {
		state = result.State
	}
	e.metrics.RecordTurn(ctx, string(state), time.Since(start))
	e.logger.Info("Turn %s finished in state %s after %v", req.ID, state, time.Since(start))
	e.audit.Append(NewEnvelope("engine", "caller", EnvelopeEvent, turn, map[string]any{
		"request_id": req.ID,
		"state":      string(state),
	}))

	return result, err
}

func (e *Engine) process(ctx context.Context, tc *TurnContext) (*TurnResult, error) {
	// Gating.
	if err := e.runStage(ctx, tc, StateGating, e.gate); err != nil {
		if rejected, ok := loomerrors.IsValidationRejected(err); ok {
			e.logger.Info("Turn %s rejected: %s", tc.Request.ID, rejected.Reason)
			return &TurnResult{
				RequestID:       tc.Request.ID,
				State:           StateRejected,
				Turn:            tc.Snapshot.Turn,
				Rejected:        rejected.Reason,
				SnapshotSummary: tc.Snapshot.Summary(),
			}, nil
		}
		return nil, loomerrors.NewPipelineError(string(StateGating), err)
	}

	// Simulating, Planning, Atmosphere: sequential, all required.
	for _, stage := range e.stages {
		if err := e.runStage(ctx, tc, State(stage.Name()), stage); err != nil {
			return nil, loomerrors.NewPipelineError(stage.Name(), err)
		}
	}

	// Casting: pure selection, no generative call.
	tension := "normal"
	if tc.Script != nil {
		tension = tc.Script.Tension
	}
	tc.Cast = SelectCast(tc.Snapshot.PresentActors(), tension)
	dialogue := history.Window(e.log, e.config.DialogueMaxEntries, e.config.DialogueMaxChars)
	tc.Tasks = BuildTasks(tc.Cast, tc.Script, dialogue, tc.Snapshot.Summary())
	e.auditTransition(tc, StateCasting, StateActing, map[string]any{
		"cast": len(tc.Cast), "tasks": len(tc.Tasks), "tension": tension,
	})

	// Acting: bounded parallel fan-out; failures isolated per actor.
	if err := ctx.Err(); err != nil {
		return nil, loomerrors.NewPipelineError(string(StateActing), err)
	}
	outputs, actorDelta, warnings := e.pool.Act(ctx, tc.Tasks)
	tc.Outputs = outputs
	tc.Warnings = append(tc.Warnings, warnings...)
	if actorDelta != nil {
		tc.Deltas = append(tc.Deltas, *actorDelta)
	}
	e.auditTransition(tc, StateActing, StateAggregating, map[string]any{
		"outputs": len(outputs), "failures": len(warnings),
	})

	// Cancellation between stages discards everything; nothing committed.
	if err := ctx.Err(); err != nil {
		return nil, loomerrors.NewPipelineError(string(StateAggregating), err)
	}

	// Aggregating and commit.
	merged, entries := Aggregate(tc)
	committed, err := e.store.Commit(tc.Snapshot, merged)
	if err != nil {
		return nil, loomerrors.NewPipelineError(string(StateAggregating), err)
	}
	e.appendLog(committed.Turn, entries)
	e.auditTransition(tc, StateAggregating, StateCommitted, map[string]any{
		"turn": committed.Turn,
	})

	return &TurnResult{
		RequestID:       tc.Request.ID,
		State:           StateCommitted,
		Turn:            committed.Turn,
		Narration:       renderNarration(entries),
		Entries:         entries,
		ActorOutputs:    outputs,
		SnapshotSummary: committed.Summary(),
		Warnings:        tc.Warnings,
	}, nil
}

// OpeningScene produces the world's first narration before any player input:
// planning and atmosphere only, no gate, no world-sim, no actors. It commits
// as turn 1 and is a no-op when the world has already advanced.
func (e *Engine) OpeningScene(ctx context.Context) (*TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.store.Current()
	if snapshot.Turn != 0 {
		return nil, nil
	}

	tc := &TurnContext{
		Request:  TurnRequest{ID: uuid.NewString(), Action: "The story begins.", Turn: 0},
		Snapshot: snapshot,
	}

	for _, stage := range e.stages[1:] { // planner, atmosphere
		if err := e.runStage(ctx, tc, State(stage.Name()), stage); err != nil {
			return nil, loomerrors.NewPipelineError(stage.Name(), err)
		}
	}

	merged, entries := Aggregate(tc)
	committed, err := e.store.Commit(snapshot, merged)
	if err != nil {
		return nil, loomerrors.NewPipelineError(string(StateAggregating), err)
	}
	e.appendLog(committed.Turn, entries)
	e.logger.Info("Opening scene committed as turn %d", committed.Turn)

	return &TurnResult{
		RequestID:       tc.Request.ID,
		State:           StateCommitted,
		Turn:            committed.Turn,
		Narration:       renderNarration(entries),
		Entries:         entries,
		SnapshotSummary: committed.Summary(),
	}, nil
}

func (e *Engine) runStage(ctx context.Context, tc *TurnContext, state State, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stageCtx, span := e.tracer.StartStageSpan(ctx, stage.Name())
	start := time.Now()

	delta, err := stage.Run(stageCtx, tc)

	status := "ok"
	if err != nil {
		status = "error"
	}
	span.End()
	e.metrics.RecordStage(ctx, stage.Name(), status, time.Since(start))

	if err != nil {
		return err
	}
	if delta != nil && !delta.IsZero() {
		tc.Deltas = append(tc.Deltas, *delta)
	}
	e.auditTransition(tc, state, nextState(state), map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

func (e *Engine) auditTransition(tc *TurnContext, from, to State, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["request_id"] = tc.Request.ID
	e.audit.Append(NewEnvelope(string(from), string(to), EnvelopeEvent, tc.Snapshot.Turn, payload))
}

// appendLog records the committed turn's narration into the engine's rolling
// history, bounded so stage prompts stay within their windows.
func (e *Engine) appendLog(turn int, entries []NarrationEntry) {
	for _, entry := range entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		e.log = append(e.log, history.Entry{Turn: turn, Speaker: entry.Speaker, Text: text})
	}
	// Keep a generous multiple of the largest window; consumers re-window
	// per use.
	limit := 4 * e.config.HistoryMaxEntries
	if limit > 0 && len(e.log) > limit {
		e.log = e.log[len(e.log)-limit:]
	}
}

func nextState(s State) State {
	switch s {
	case StateGating:
		return StateSimulating
	case StateSimulating:
		return StatePlanning
	case StatePlanning:
		return StateAtmosphere
	case StateAtmosphere:
		return StateCasting
	case StateCasting:
		return StateActing
	case StateActing:
		return StateAggregating
	default:
		return StateCommitted
	}
}

// Describe renders a one-line pipeline summary, used by the version command
// and startup logging.
func Describe(config Config) string {
	return fmt.Sprintf("pipeline: gate -> worldsim -> plan -> atmosphere -> cast -> act(x%d) -> aggregate", config.MaxInFlight)
}
