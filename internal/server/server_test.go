package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/engine"
	loomerrors "loom/internal/errors"
	"loom/internal/llm"
	"loom/internal/world"
)

const planResponse = `{
	"mood": "calm",
	"tension": "low",
	"narration": "The evening settles over the tavern.",
	"instructions": [{"target": "aldric", "directive": "greet the guest"}]
}`

func testServer(t *testing.T) (*Server, world.Store, *llm.ScriptedClient) {
	t.Helper()

	client := llm.NewScriptedClient().
		Respond("check a player's declared action", `{"is_valid": true}`).
		Respond("physical-consequence", `{"time_cost": 10}`).
		Respond("scene director", planResponse).
		Respond("sensory atmosphere", `{"description": "Warm light.", "ambient_set": ["hearth"]}`).
		Respond("You play Aldric", `{"dialogue": "Welcome back.", "mood": "warm"}`)

	store := world.NewMemoryStore(world.Snapshot{
		Location: "tavern",
		Clock:    19 * 60,
		Day:      1,
		Actors: []world.ActorState{
			{ID: "aldric", Name: "Aldric", Importance: 0.9, Location: "tavern", Mood: "calm"},
		},
	})

	retryConfig := loomerrors.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	wrapped := llm.WrapWithRetry(client, retryConfig, time.Second)
	eng := engine.New(store, wrapped, engine.DefaultConfig(), nil, nil)

	return New(eng, ":0", nil), store, client
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTurnEndpointCommits(t *testing.T) {
	srv, store, _ := testServer(t)

	rec := postJSON(t, srv.Router(), "/api/turn", map[string]any{"action": "I sit by the fire", "turn": 0})
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, engine.StateCommitted, result.State)
	assert.Equal(t, 1, result.Turn)
	assert.Contains(t, result.Narration, "evening settles")
	assert.Equal(t, 1, store.Current().Turn)
}

func TestTurnEndpointDefaultsToCurrentTurn(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := postJSON(t, srv.Router(), "/api/turn", map[string]any{"action": "I look around"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTurnEndpointRejectsStale(t *testing.T) {
	srv, store, _ := testServer(t)

	rec := postJSON(t, srv.Router(), "/api/turn", map[string]any{"action": "I wave", "turn": 7})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "rejected")
	assert.Equal(t, 0, store.Current().Turn)
}

func TestTurnEndpointMissingAction(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := postJSON(t, srv.Router(), "/api/turn", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnEndpointPipelineFailure(t *testing.T) {
	client := llm.NewScriptedClient().
		Respond("check a player's declared action", `{"is_valid": true}`).
		FailWith("physical-consequence", loomerrors.NewPermanentError(nil, "model gone"))

	store := world.NewMemoryStore(world.Snapshot{
		Location: "tavern",
		Actors:   []world.ActorState{{ID: "aldric", Name: "Aldric", Importance: 0.9, Location: "tavern"}},
	})
	retryConfig := loomerrors.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	eng := engine.New(store, llm.WrapWithRetry(client, retryConfig, time.Second), engine.DefaultConfig(), nil, nil)
	srv := New(eng, ":0", nil)

	rec := postJSON(t, srv.Router(), "/api/turn", map[string]any{"action": "I wait", "turn": 0})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "simulating")
	// A failed turn never advances the world.
	assert.Equal(t, 0, store.Current().Turn)
}

func TestStateEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"turn\":0")
	assert.Contains(t, rec.Body.String(), "tavern")
}

func TestSnapshotsAndRestoreEndpoints(t *testing.T) {
	srv, store, _ := testServer(t)

	// Advance two turns directly through the store.
	for i := 0; i < 2; i++ {
		_, err := store.Commit(store.Current(), world.Delta{Source: world.SourceWorldSim, ClockAdvance: 10})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/snapshots?limit=2", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Snapshots []world.SnapshotMetadata `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Snapshots, 2)
	assert.Equal(t, 2, listing.Snapshots[0].Turn)

	rec = postJSON(t, srv.Router(), "/api/restore", map[string]any{"turn": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.Current().Turn)

	rec = postJSON(t, srv.Router(), "/api/restore", map[string]any{"turn": 99})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebsocketDeliversEnvelopesInOrder(t *testing.T) {
	srv, _, _ := testServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// Give the handler a moment to register its subscription.
	time.Sleep(50 * time.Millisecond)

	rec := postJSON(t, srv.Router(), "/api/turn", map[string]any{"action": "I sit", "turn": 0})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first engine.Envelope
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, string(engine.StateGating), first.From)
}
