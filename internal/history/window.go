// Package history bounds the context any pipeline stage or actor sees. There
// is no global conversation log: each consumer (routing audit, per-actor
// dialogue, plot threads) holds its own entries and applies its own limits
// through Window on demand.
package history

// Entry is one item of bounded history: a line of dialogue, a logged event,
// or a plot-thread note.
type Entry struct {
	Turn    int    `json:"turn"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// size is the character cost of an entry against a window budget.
func (e Entry) size() int {
	return len([]rune(e.Text))
}

// Window returns the most recent entries satisfying both the count and the
// character budget, dropping oldest entries first and preserving order. It is
// a pure function: identical input yields identical output, and re-applying
// the same bounds is a no-op.
func Window(entries []Entry, maxEntries, maxChars int) []Entry {
	if len(entries) == 0 || maxEntries <= 0 || maxChars <= 0 {
		return nil
	}

	start := len(entries)
	chars := 0
	for start > 0 {
		candidate := entries[start-1]
		cost := candidate.size()
		if len(entries)-(start-1) > maxEntries {
			break
		}
		if chars+cost > maxChars {
			// A single oversized entry still yields an empty window rather
			// than a truncated entry: windows never rewrite content.
			break
		}
		chars += cost
		start--
	}

	if start == len(entries) {
		return nil
	}

	out := make([]Entry, len(entries)-start)
	copy(out, entries[start:])
	return out
}

// TotalChars sums the character cost of the entries.
func TotalChars(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.size()
	}
	return total
}
