package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/observability"
	"loom/internal/world"
)

// DefaultMaxInFlight bounds concurrent actor generative calls per turn.
const DefaultMaxInFlight = 4

// ActorPool runs one generative call per cast member, all concurrently under
// a max-in-flight bound. A single actor's exhausted failure never fails the
// turn: the actor is omitted and a partial-failure warning recorded.
type ActorPool struct {
	client      llm.Client
	maxInFlight int
	callTimeout time.Duration
	metrics     *observability.MetricsCollector
	logger      logging.Logger
}

// NewActorPool builds the pool. callTimeout bounds each actor's call
// independently so one slow actor cannot drain another's retry budget.
func NewActorPool(client llm.Client, maxInFlight int, callTimeout time.Duration, metrics *observability.MetricsCollector) *ActorPool {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &ActorPool{
		client:      client,
		maxInFlight: maxInFlight,
		callTimeout: callTimeout,
		metrics:     metrics,
		logger:      logging.NewComponentLogger("actor-pool"),
	}
}

type actorResponse struct {
	Dialogue string `json:"dialogue"`
	Mood     string `json:"mood"`
}

// Act dispatches every task and collects the results in directorial order.
// The returned delta carries the actor-sourced state proposals (mood,
// last-seen marks) for the actors that succeeded.
func (p *ActorPool) Act(ctx context.Context, tasks []ActorTask) ([]ActorOutput, *world.Delta, []Warning) {
	if len(tasks) == 0 {
		return nil, nil, nil
	}

	type slot struct {
		output ActorOutput
		update *world.ActorUpdate
		err    error
	}
	slots := make([]slot, len(tasks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxInFlight)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			output, update, err := p.runActor(gctx, task)
			mu.Lock()
			slots[i] = slot{output: output, update: update, err: err}
			mu.Unlock()
			// Failures are isolated; never cancel sibling actors.
			return nil
		})
	}
	_ = g.Wait()

	var outputs []ActorOutput
	var warnings []Warning
	delta := &world.Delta{Source: world.SourceActor}

	for i, s := range slots {
		if s.err != nil {
			p.logger.Warn("Actor %s failed this turn: %v", tasks[i].ActorID, s.err)
			p.metrics.RecordActorFailure(ctx, tasks[i].ActorID)
			warnings = append(warnings, Warning{
				Code:    "partial_failure",
				ActorID: tasks[i].ActorID,
				Message: fmt.Sprintf("%s fell silent this turn", tasks[i].Name),
			})
			continue
		}
		outputs = append(outputs, s.output)
		if s.update != nil {
			delta.ActorUpdates = append(delta.ActorUpdates, *s.update)
		}
	}

	// Completion order is irrelevant; directorial order decides output order.
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Order < outputs[j].Order })

	if delta.IsZero() {
		delta = nil
	}
	return outputs, delta, warnings
}

func (p *ActorPool) runActor(ctx context.Context, task ActorTask) (ActorOutput, *world.ActorUpdate, error) {
	start := time.Now()

	var instr strings.Builder
	fmt.Fprintf(&instr, "You play %s in a fictional world.", task.Name)
	if persona := strings.TrimSpace(task.Persona); persona != "" {
		fmt.Fprintf(&instr, " Your character: %s", persona)
	}
	instr.WriteString(" Follow the director's note and answer in character. " +
		`Reply with JSON only: {"dialogue": what you say or do, "mood": one word}.`)

	var resp actorResponse
	err := generateJSON(ctx, p.client, llm.Request{
		Instruction: instr.String(),
		Context:     fmt.Sprintf("Scene: %s\nRecent dialogue:\n%s\nDirector's note: %s", task.Scene, renderRecent(task.Dialogue), task.Directive),
		Temperature: 0.9,
		Timeout:     p.callTimeout,
	}, &resp)

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordGeneration(ctx, "actor", status, time.Since(start))

	if err != nil {
		return ActorOutput{}, nil, err
	}

	output := ActorOutput{
		ActorID:  task.ActorID,
		Name:     task.Name,
		Dialogue: strings.TrimSpace(resp.Dialogue),
		Order:    task.Order,
	}

	update := &world.ActorUpdate{ID: task.ActorID, MarkSeen: true}
	if mood := strings.TrimSpace(resp.Mood); mood != "" {
		update.Mood = &mood
	}
	return output, update, nil
}
