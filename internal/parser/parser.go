// Package parser turns raw generated text into structured data or a typed
// failure. Generated output is frequently wrapped in markdown code fences,
// annotated with // or /* */ comments, or followed by trailing prose; the
// repair pipeline strips those artifacts before a strict parse. It never
// substitutes defaults: when nothing parseable remains the caller gets a
// MalformedOutputError carrying a bounded excerpt of the raw text.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	loomerrors "loom/internal/errors"
)

// Parse extracts a JSON object from raw generated text.
func Parse(raw string) (map[string]any, error) {
	var out map[string]any
	if err := Decode(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode extracts JSON from raw generated text into v. The repair steps are
// applied in order: code-fence stripping, comment removal, strict parse,
// brace-matched extraction, then library-based structural repair. A value
// produced by any step must still survive a strict json.Unmarshal.
func Decode(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return loomerrors.NewMalformedOutput(fmt.Errorf("empty generation output"), raw)
	}

	cleaned := StripComments(StripFences(trimmed))

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	if extracted, ok := extractByBraceMatching(cleaned); ok {
		if err := json.Unmarshal([]byte(extracted), v); err == nil {
			return nil
		}
	}

	repaired, repairErr := jsonrepair.JSONRepair(cleaned)
	if repairErr == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	return loomerrors.NewMalformedOutput(fmt.Errorf("no parseable JSON in generation output"), raw)
}

// StripFences removes surrounding markdown code-fence markers when present.
// Only a leading marker and a trailing marker are touched; a fence sequence
// anywhere else (for example inside a string value) is payload, not wrapper.
func StripFences(s string) string {
	cleaned := strings.TrimSpace(s)

	lower := strings.ToLower(cleaned)
	switch {
	case strings.HasPrefix(lower, "```json"):
		cleaned = cleaned[7:]
	case strings.HasPrefix(cleaned, "```"):
		cleaned = cleaned[3:]
	}
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasSuffix(cleaned, "```") {
		cleaned = cleaned[:len(cleaned)-3]
	}
	return strings.TrimSpace(cleaned)
}

// StripComments removes //-to-end-of-line and /* */ comment sequences while
// leaving such sequences inside quoted string values untouched.
func StripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			b.WriteByte(ch)
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				// Skip to end of line; keep the newline itself.
				for i < len(s) && s[i] != '\n' {
					i++
				}
				if i < len(s) {
					b.WriteByte('\n')
				}
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					i = len(s)
					continue
				}
				i += 2 + end + 1
				continue
			}
		}

		b.WriteByte(ch)
	}

	return b.String()
}

// extractByBraceMatching finds the first balanced top-level JSON object or
// array, tolerating trailing prose after it.
func extractByBraceMatching(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	open := s[start]
	var closing byte = '}'
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]

		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
