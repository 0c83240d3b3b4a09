package engine

import (
	"strings"

	"loom/internal/world"
)

// Aggregate merges the stage deltas by fixed precedence and assembles the
// ordered narration log: plan narration first, then atmosphere, then actor
// dialogue in directorial order. Completion order of the actor calls never
// shows through.
func Aggregate(tc *TurnContext) (world.Delta, []NarrationEntry) {
	merged := world.Merge(tc.Deltas)

	var entries []NarrationEntry
	if tc.Script != nil && strings.TrimSpace(tc.Script.Narration) != "" {
		entries = append(entries, NarrationEntry{Kind: "narration", Text: tc.Script.Narration})
	}
	if strings.TrimSpace(tc.Atmosphere) != "" {
		entries = append(entries, NarrationEntry{Kind: "atmosphere", Text: tc.Atmosphere})
	}
	for _, output := range tc.Outputs {
		if output.Dialogue == "" {
			continue
		}
		entries = append(entries, NarrationEntry{
			Kind:    "dialogue",
			Speaker: output.Name,
			Text:    output.Dialogue,
		})
	}

	return merged, entries
}

// renderNarration flattens the ordered entries into the single narration
// string carried by the turn result.
func renderNarration(entries []NarrationEntry) string {
	var parts []string
	for _, e := range entries {
		if e.Speaker != "" {
			parts = append(parts, e.Speaker+": "+e.Text)
		} else {
			parts = append(parts, e.Text)
		}
	}
	return strings.Join(parts, "\n")
}
