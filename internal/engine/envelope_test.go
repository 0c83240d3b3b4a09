package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogBounded(t *testing.T) {
	log := NewAuditLog(3)
	for i := 0; i < 5; i++ {
		log.Append(NewEnvelope("a", "b", EnvelopeEvent, i, nil))
	}

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, 2, entries[0].Turn)
	assert.Equal(t, 4, entries[2].Turn)
}

func TestAuditLogSubscribeReceivesInOrder(t *testing.T) {
	log := NewAuditLog(10)
	ch, cancel := log.Subscribe()
	defer cancel()

	for i := 0; i < 3; i++ {
		log.Append(NewEnvelope("gating", "simulating", EnvelopeEvent, i, nil))
	}

	for i := 0; i < 3; i++ {
		env := <-ch
		assert.Equal(t, i, env.Turn)
	}
}

func TestAuditLogSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	log := NewAuditLog(1000)
	_, cancel := log.Subscribe()
	defer cancel()

	// More envelopes than the subscriber buffer; Append must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			log.Append(NewEnvelope("a", "b", EnvelopeEvent, i, nil))
		}
		close(done)
	}()
	<-done
}

func TestEnvelopeStamping(t *testing.T) {
	env := NewEnvelope("planner", "atmosphere", EnvelopeCommand, 7, map[string]any{"k": "v"})

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, 7, env.Turn)
	assert.False(t, env.Timestamp.IsZero())
}
