package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope message types.
const (
	EnvelopeQuery   = "query"
	EnvelopeCommand = "command"
	EnvelopeEvent   = "event"
)

// Envelope is the unit exchanged between stages, used only for routing and
// audit logging. State never lives here.
type Envelope struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Turn      int            `json:"turn"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEnvelope stamps an envelope with a fresh id and the current time.
func NewEnvelope(from, to, envType string, turn int, payload map[string]any) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      envType,
		Payload:   payload,
		Turn:      turn,
		Timestamp: time.Now().UTC(),
	}
}

// AuditLog keeps a bounded append-only record of stage envelopes and fans
// them out to live subscribers. Slow subscribers miss envelopes rather than
// stalling the pipeline.
type AuditLog struct {
	mu          sync.Mutex
	entries     []Envelope
	maxEntries  int
	subscribers map[int]chan Envelope
	nextSubID   int
}

// NewAuditLog creates an audit log bounded to maxEntries (oldest dropped).
func NewAuditLog(maxEntries int) *AuditLog {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &AuditLog{
		maxEntries:  maxEntries,
		subscribers: map[int]chan Envelope{},
	}
}

// Append records an envelope and notifies subscribers.
func (l *AuditLog) Append(env Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, env)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}

	for _, ch := range l.subscribers {
		select {
		case ch <- env:
		default:
		}
	}
}

// Entries returns a copy of the retained envelopes, oldest first.
func (l *AuditLog) Entries() []Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Envelope(nil), l.entries...)
}

// Subscribe registers a live feed. The returned cancel func must be called
// to release the channel.
func (l *AuditLog) Subscribe() (<-chan Envelope, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSubID
	l.nextSubID++
	ch := make(chan Envelope, 64)
	l.subscribers[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existing, ok := l.subscribers[id]; ok {
			delete(l.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}
