package engine

import (
	"fmt"

	"loom/internal/history"
	"loom/internal/world"
)

// Importance floors keyed to scene tension. Low tension has no floor.
const (
	highTensionFloor   = 0.8
	normalTensionFloor = 0.5
)

// SelectCast filters the actors present in the scene by an importance
// threshold keyed to tension. The result is always a subset of present and
// never empty when present is non-empty: if the threshold excludes everyone,
// the single highest-importance actor (ties broken by id order) is cast.
// Bounding the cast bounds the number of parallel generative calls.
func SelectCast(present []world.ActorState, tension string) []world.ActorState {
	if len(present) == 0 {
		return nil
	}

	var floor float64
	switch tension {
	case "high":
		floor = highTensionFloor
	case "low":
		floor = 0
	default:
		floor = normalTensionFloor
	}

	var cast []world.ActorState
	for _, a := range present {
		if a.Importance >= floor {
			cast = append(cast, a)
		}
	}
	if len(cast) > 0 {
		return cast
	}

	// Fallback: present is sorted by id, so the first maximum wins ties.
	best := present[0]
	for _, a := range present[1:] {
		if a.Importance > best.Importance {
			best = a
		}
	}
	return []world.ActorState{best}
}

// BuildTasks turns the scene script into one ActorTask per cast member.
// Actors the script addresses keep the script's order (directorial order);
// cast members the script never mentions are appended after, in id order,
// with a generic directive. Script instructions targeting actors outside the
// cast are dropped.
func BuildTasks(cast []world.ActorState, script *SceneScript, dialogue []history.Entry, scene string) []ActorTask {
	inCast := map[string]world.ActorState{}
	for _, a := range cast {
		inCast[a.ID] = a
	}

	var tasks []ActorTask
	assigned := map[string]bool{}
	order := 0

	if script != nil {
		for _, instr := range script.Instructions {
			if instr.Target == "vibe" {
				continue
			}
			actor, ok := inCast[instr.Target]
			if !ok || assigned[actor.ID] {
				continue
			}
			assigned[actor.ID] = true
			tasks = append(tasks, ActorTask{
				ActorID:   actor.ID,
				Name:      actor.Name,
				Persona:   actor.Persona,
				Directive: instr.Directive,
				Dialogue:  dialogue,
				Scene:     scene,
				Order:     order,
			})
			order++
		}
	}

	for _, actor := range cast {
		if assigned[actor.ID] {
			continue
		}
		tasks = append(tasks, ActorTask{
			ActorID:   actor.ID,
			Name:      actor.Name,
			Persona:   actor.Persona,
			Directive: fmt.Sprintf("React in character as %s to what just happened.", actor.Name),
			Dialogue:  dialogue,
			Scene:     scene,
			Order:     order,
		})
		order++
	}

	return tasks
}
