// Package world owns the authoritative simulation state. A Snapshot is the
// immutable world state for one turn; stages propose Deltas, the aggregator
// merges them by precedence, and the Store's commit is the single write path
// that produces the next Snapshot.
package world

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MaxPlotThreads bounds the active plot-thread list carried by a snapshot.
const MaxPlotThreads = 7

// ActorState is the per-actor slice of a snapshot. Persona is the static
// character card from the world seed; it rides along so actor prompts can be
// built from the snapshot alone.
type ActorState struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Importance float64 `json:"importance"` // narrative weight in [0, 1]
	Location   string  `json:"location"`
	Mood       string  `json:"mood"`
	Persona    string  `json:"persona,omitempty"`
	LastSeen   int     `json:"last_seen"` // turn the actor last acted
}

// PlotThread is one entry of the bounded active-plot list.
type PlotThread struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Status  string `json:"status"` // open, advancing, resolved
}

// Snapshot is the authoritative world state at one turn. It is immutable
// once committed: every accessor returns copies, and a new turn derives
// Snapshot(t+1) from Snapshot(t) plus a merged delta.
type Snapshot struct {
	Turn        int          `json:"turn"`
	Location    string       `json:"location"`
	Clock       int          `json:"clock"` // in-world minutes since day start
	Day         int          `json:"day"`
	Actors      []ActorState `json:"actors"` // sorted by ID
	PlotThreads []PlotThread `json:"plot_threads"`
	Ambient     []string     `json:"ambient"`
	CommittedAt time.Time    `json:"committed_at"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Actors = append([]ActorState(nil), s.Actors...)
	out.PlotThreads = append([]PlotThread(nil), s.PlotThreads...)
	out.Ambient = append([]string(nil), s.Ambient...)
	return out
}

// Actor looks up an actor state by id.
func (s Snapshot) Actor(id string) (ActorState, bool) {
	for _, a := range s.Actors {
		if a.ID == id {
			return a, true
		}
	}
	return ActorState{}, false
}

// PresentActors returns the actors placed at the snapshot's current
// location, in stable id order.
func (s Snapshot) PresentActors() []ActorState {
	var present []ActorState
	for _, a := range s.Actors {
		if a.Location == s.Location {
			present = append(present, a)
		}
	}
	return present
}

// ClockString renders the in-world clock as "Day N HH:MM".
func (s Snapshot) ClockString() string {
	h := s.Clock / 60
	m := s.Clock % 60
	return fmt.Sprintf("Day %d %02d:%02d", s.Day, h, m)
}

// Summary renders a compact human-readable description of the snapshot,
// used in turn responses and audit payloads.
func (s Snapshot) Summary() string {
	names := make([]string, 0, len(s.Actors))
	for _, a := range s.PresentActors() {
		names = append(names, a.Name)
	}
	threads := make([]string, 0, len(s.PlotThreads))
	for _, p := range s.PlotThreads {
		if p.Status != "resolved" {
			threads = append(threads, p.Summary)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "turn %d, %s at %s", s.Turn, s.ClockString(), s.Location)
	if len(names) > 0 {
		fmt.Fprintf(&b, "; present: %s", strings.Join(names, ", "))
	}
	if len(s.Ambient) > 0 {
		fmt.Fprintf(&b, "; ambient: %s", strings.Join(s.Ambient, ", "))
	}
	if len(threads) > 0 {
		fmt.Fprintf(&b, "; threads: %s", strings.Join(threads, " | "))
	}
	return b.String()
}

func sortActors(actors []ActorState) {
	sort.Slice(actors, func(i, j int) bool { return actors[i].ID < actors[j].ID })
}
