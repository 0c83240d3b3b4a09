package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/world"
)

func present(importances ...float64) []world.ActorState {
	var actors []world.ActorState
	for i, imp := range importances {
		actors = append(actors, world.ActorState{
			ID:         string(rune('a' + i)),
			Name:       string(rune('A' + i)),
			Importance: imp,
		})
	}
	return actors
}

func TestSelectCastHighTensionFloor(t *testing.T) {
	cast := SelectCast(present(0.9, 0.7, 0.85, 0.4), "high")

	require.Len(t, cast, 2)
	for _, a := range cast {
		assert.GreaterOrEqual(t, a.Importance, 0.8)
	}
}

func TestSelectCastNormalTensionFloor(t *testing.T) {
	cast := SelectCast(present(0.9, 0.5, 0.49), "normal")
	require.Len(t, cast, 2)
}

func TestSelectCastLowTensionNoFloor(t *testing.T) {
	cast := SelectCast(present(0.9, 0.1, 0.0), "low")
	assert.Len(t, cast, 3)
}

func TestSelectCastFallbackToHighestImportance(t *testing.T) {
	// Nobody clears the high floor; the single best actor is cast anyway.
	cast := SelectCast(present(0.6, 0.7, 0.3), "high")

	require.Len(t, cast, 1)
	assert.Equal(t, 0.7, cast[0].Importance)
}

func TestSelectCastFallbackTieBrokenByIDOrder(t *testing.T) {
	actors := present(0.6, 0.6)
	cast := SelectCast(actors, "high")

	require.Len(t, cast, 1)
	assert.Equal(t, "a", cast[0].ID)
}

func TestSelectCastEmptyPresent(t *testing.T) {
	assert.Nil(t, SelectCast(nil, "high"))
}

func TestSelectCastSubsetOfPresent(t *testing.T) {
	actors := present(0.95, 0.85, 0.2)
	cast := SelectCast(actors, "high")

	ids := map[string]bool{}
	for _, a := range actors {
		ids[a.ID] = true
	}
	for _, a := range cast {
		assert.True(t, ids[a.ID])
	}
}

func TestBuildTasksDirectorialOrder(t *testing.T) {
	cast := []world.ActorState{
		{ID: "aldric", Name: "Aldric", Importance: 0.9},
		{ID: "mira", Name: "Mira", Importance: 0.6},
		{ID: "tobias", Name: "Tobias", Importance: 0.5},
	}
	script := &SceneScript{
		Instructions: []SceneInstruction{
			{Target: "vibe", Directive: "dim the lights"},
			{Target: "mira", Directive: "ask about the ledger"},
			{Target: "aldric", Directive: "deflect"},
			{Target: "ghost", Directive: "not in the cast"},
		},
	}

	tasks := BuildTasks(cast, script, nil, "scene")

	require.Len(t, tasks, 3)
	// Scripted actors in script order, unscripted appended after.
	assert.Equal(t, "mira", tasks[0].ActorID)
	assert.Equal(t, "ask about the ledger", tasks[0].Directive)
	assert.Equal(t, "aldric", tasks[1].ActorID)
	assert.Equal(t, "tobias", tasks[2].ActorID)
	for i, task := range tasks {
		assert.Equal(t, i, task.Order)
	}
}

func TestBuildTasksNoScript(t *testing.T) {
	cast := []world.ActorState{{ID: "aldric", Name: "Aldric"}}
	tasks := BuildTasks(cast, nil, nil, "scene")

	require.Len(t, tasks, 1)
	assert.Contains(t, tasks[0].Directive, "Aldric")
}

func TestBuildTasksCarryPersona(t *testing.T) {
	cast := []world.ActorState{
		{ID: "aldric", Name: "Aldric", Persona: "A retired guard captain."},
		{ID: "mira", Name: "Mira", Persona: "A traveling scribe."},
	}
	script := &SceneScript{
		Instructions: []SceneInstruction{{Target: "aldric", Directive: "deflect"}},
	}

	tasks := BuildTasks(cast, script, nil, "scene")

	require.Len(t, tasks, 2)
	assert.Equal(t, "A retired guard captain.", tasks[0].Persona)
	assert.Equal(t, "A traveling scribe.", tasks[1].Persona)
}
