package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GenesisActor is one actor entry of a world seed file.
type GenesisActor struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Importance float64 `yaml:"importance"`
	Location   string  `yaml:"location"`
	Mood       string  `yaml:"mood"`
	Persona    string  `yaml:"persona"`
}

// GenesisPlot is one opening plot thread of a world seed file.
type GenesisPlot struct {
	ID      string `yaml:"id"`
	Summary string `yaml:"summary"`
}

// Genesis is the declarative world seed the engine boots from.
type Genesis struct {
	Title    string         `yaml:"title"`
	Location string         `yaml:"location"`
	Clock    string         `yaml:"clock"` // "HH:MM", defaults to 08:00
	Day      int            `yaml:"day"`
	Actors   []GenesisActor `yaml:"actors"`
	Plot     []GenesisPlot  `yaml:"plot"`
	Ambient  []string       `yaml:"ambient"`
}

// LoadGenesis reads and validates a world seed file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world seed: %w", err)
	}
	return ParseGenesis(data)
}

// ParseGenesis decodes a world seed document.
func ParseGenesis(data []byte) (*Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode world seed: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks the seed's structural invariants.
func (g *Genesis) Validate() error {
	if g.Location == "" {
		return fmt.Errorf("world seed: missing starting location")
	}
	if len(g.Actors) == 0 {
		return fmt.Errorf("world seed: no actors declared")
	}
	if len(g.Plot) > MaxPlotThreads {
		return fmt.Errorf("world seed: %d plot threads exceeds limit %d", len(g.Plot), MaxPlotThreads)
	}

	seen := map[string]bool{}
	for i, a := range g.Actors {
		if a.ID == "" {
			return fmt.Errorf("world seed: actor %d missing id", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("world seed: duplicate actor id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Importance < 0 || a.Importance > 1 {
			return fmt.Errorf("world seed: actor %q importance %.2f outside [0, 1]", a.ID, a.Importance)
		}
	}

	if g.Clock != "" {
		if _, err := parseClock(g.Clock); err != nil {
			return fmt.Errorf("world seed: %w", err)
		}
	}
	return nil
}

// Snapshot builds the turn-0 snapshot declared by the seed.
func (g *Genesis) Snapshot() Snapshot {
	clock := 8 * 60
	if g.Clock != "" {
		clock, _ = parseClock(g.Clock)
	}

	actors := make([]ActorState, 0, len(g.Actors))
	for _, a := range g.Actors {
		loc := a.Location
		if loc == "" {
			loc = g.Location
		}
		actors = append(actors, ActorState{
			ID:         a.ID,
			Name:       a.Name,
			Importance: a.Importance,
			Location:   loc,
			Mood:       a.Mood,
			Persona:    a.Persona,
		})
	}
	sortActors(actors)

	threads := make([]PlotThread, 0, len(g.Plot))
	for _, p := range g.Plot {
		threads = append(threads, PlotThread{ID: p.ID, Summary: p.Summary, Status: "open"})
	}

	return Snapshot{
		Location:    g.Location,
		Clock:       clock,
		Day:         g.Day,
		Actors:      actors,
		PlotThreads: threads,
		Ambient:     append([]string(nil), g.Ambient...),
	}
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return h*60 + m, nil
}
