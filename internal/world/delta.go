package world

import "sort"

// Stage precedence for delta merging, highest first. Conflicting writes to
// the same field are resolved by this order, not blended.
const (
	SourceWorldSim   = "worldsim"
	SourcePlan       = "plan"
	SourceAtmosphere = "atmosphere"
	SourceActor      = "actor"
)

var sourcePrecedence = map[string]int{
	SourceWorldSim:   4,
	SourcePlan:       3,
	SourceAtmosphere: 2,
	SourceActor:      1,
}

// ActorUpdate proposes changes to a single actor's state. Nil pointer fields
// leave the current value untouched.
type ActorUpdate struct {
	ID       string  `json:"id"`
	Location *string `json:"location,omitempty"`
	Mood     *string `json:"mood,omitempty"`
	MarkSeen bool    `json:"mark_seen,omitempty"`
}

// Delta is a proposed, uncommitted set of changes to a Snapshot, produced by
// one pipeline stage. Deltas never mutate a snapshot; they are merged by the
// aggregator and applied once at commit.
type Delta struct {
	Source        string        `json:"source"`
	ClockAdvance  int           `json:"clock_advance,omitempty"` // in-world minutes
	Location      *string       `json:"location,omitempty"`
	ActorUpdates  []ActorUpdate `json:"actor_updates,omitempty"`
	PlotUpserts   []PlotThread  `json:"plot_upserts,omitempty"`
	PlotResolved  []string      `json:"plot_resolved,omitempty"`
	AmbientSet    []string      `json:"ambient_set,omitempty"` // replaces ambient tags when non-nil
	AmbientAdd    []string      `json:"ambient_add,omitempty"`
	AmbientRemove []string      `json:"ambient_remove,omitempty"`
}

// IsZero reports whether the delta proposes no change at all.
func (d Delta) IsZero() bool {
	return d.ClockAdvance == 0 &&
		d.Location == nil &&
		len(d.ActorUpdates) == 0 &&
		len(d.PlotUpserts) == 0 &&
		len(d.PlotResolved) == 0 &&
		d.AmbientSet == nil &&
		len(d.AmbientAdd) == 0 &&
		len(d.AmbientRemove) == 0
}

// Merge folds the deltas into a single one by stage precedence: deltas are
// applied lowest-precedence first, so a higher-precedence write to the same
// field wins outright. ClockAdvance is the only additive field: every stage
// may spend in-world time.
func Merge(deltas []Delta) Delta {
	ordered := make([]Delta, 0, len(deltas))
	// Stable selection sort over the tiny fixed stage set, lowest first.
	for precedence := 1; precedence <= len(sourcePrecedence); precedence++ {
		for _, d := range deltas {
			if sourcePrecedence[d.Source] == precedence {
				ordered = append(ordered, d)
			}
		}
	}

	merged := Delta{Source: SourceWorldSim}
	actorUpdates := map[string]ActorUpdate{}
	var actorOrder []string
	plotUpserts := map[string]PlotThread{}
	var plotOrder []string
	resolved := map[string]bool{}

	for _, d := range ordered {
		merged.ClockAdvance += d.ClockAdvance

		if d.Location != nil {
			loc := *d.Location
			merged.Location = &loc
		}

		for _, u := range d.ActorUpdates {
			prev, seen := actorUpdates[u.ID]
			if !seen {
				actorOrder = append(actorOrder, u.ID)
				actorUpdates[u.ID] = u
				continue
			}
			if u.Location != nil {
				prev.Location = u.Location
			}
			if u.Mood != nil {
				prev.Mood = u.Mood
			}
			prev.MarkSeen = prev.MarkSeen || u.MarkSeen
			actorUpdates[u.ID] = prev
		}

		for _, p := range d.PlotUpserts {
			if _, seen := plotUpserts[p.ID]; !seen {
				plotOrder = append(plotOrder, p.ID)
			}
			plotUpserts[p.ID] = p
		}
		for _, id := range d.PlotResolved {
			resolved[id] = true
		}

		if d.AmbientSet != nil {
			merged.AmbientSet = append([]string(nil), d.AmbientSet...)
			merged.AmbientAdd = nil
			merged.AmbientRemove = nil
		}
		merged.AmbientAdd = append(merged.AmbientAdd, d.AmbientAdd...)
		merged.AmbientRemove = append(merged.AmbientRemove, d.AmbientRemove...)
	}

	for _, id := range actorOrder {
		merged.ActorUpdates = append(merged.ActorUpdates, actorUpdates[id])
	}
	for _, id := range plotOrder {
		merged.PlotUpserts = append(merged.PlotUpserts, plotUpserts[id])
	}
	for id := range resolved {
		merged.PlotResolved = append(merged.PlotResolved, id)
	}
	// Deterministic output regardless of map iteration.
	sort.Strings(merged.PlotResolved)

	return merged
}

// Apply derives the next snapshot from prev plus a merged delta. The prev
// snapshot is never mutated.
func Apply(prev Snapshot, delta Delta) Snapshot {
	next := prev.Clone()
	next.Turn = prev.Turn + 1

	next.Clock += delta.ClockAdvance
	for next.Clock >= 24*60 {
		next.Clock -= 24 * 60
		next.Day++
	}

	if delta.Location != nil {
		next.Location = *delta.Location
	}

	for _, u := range delta.ActorUpdates {
		for i := range next.Actors {
			if next.Actors[i].ID != u.ID {
				continue
			}
			if u.Location != nil {
				next.Actors[i].Location = *u.Location
			}
			if u.Mood != nil {
				next.Actors[i].Mood = *u.Mood
			}
			if u.MarkSeen {
				next.Actors[i].LastSeen = next.Turn
			}
		}
	}
	sortActors(next.Actors)

	next.PlotThreads = applyPlot(next.PlotThreads, delta)

	if delta.AmbientSet != nil {
		next.Ambient = append([]string(nil), delta.AmbientSet...)
	}
	for _, tag := range delta.AmbientAdd {
		if !containsString(next.Ambient, tag) {
			next.Ambient = append(next.Ambient, tag)
		}
	}
	for _, tag := range delta.AmbientRemove {
		next.Ambient = removeString(next.Ambient, tag)
	}

	return next
}

func applyPlot(threads []PlotThread, delta Delta) []PlotThread {
	out := append([]PlotThread(nil), threads...)

	for _, p := range delta.PlotUpserts {
		updated := false
		for i := range out {
			if out[i].ID == p.ID {
				out[i] = p
				updated = true
				break
			}
		}
		if !updated {
			out = append(out, p)
		}
	}

	for _, id := range delta.PlotResolved {
		for i := range out {
			if out[i].ID == id {
				out[i].Status = "resolved"
			}
		}
	}

	// The active list is bounded and ordered: resolved threads age out
	// first, then the oldest entries.
	if len(out) > MaxPlotThreads {
		var kept []PlotThread
		overflow := len(out) - MaxPlotThreads
		for _, p := range out {
			if overflow > 0 && p.Status == "resolved" {
				overflow--
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) > MaxPlotThreads {
			kept = kept[len(kept)-MaxPlotThreads:]
		}
		out = kept
	}

	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}
