package world

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenesis() Snapshot {
	return Snapshot{
		Location: "tavern",
		Clock:    20 * 60,
		Day:      1,
		Actors: []ActorState{
			{ID: "mira", Name: "Mira", Importance: 0.6, Location: "tavern", Mood: "curious"},
			{ID: "aldric", Name: "Aldric", Importance: 0.9, Location: "tavern", Mood: "wary"},
		},
		Ambient: []string{"rain"},
	}
}

func TestMemoryStoreSeedsGenesisAsTurnZero(t *testing.T) {
	store := NewMemoryStore(testGenesis())
	current := store.Current()

	assert.Equal(t, 0, current.Turn)
	// Actors are normalized into id order on seed.
	assert.Equal(t, "aldric", current.Actors[0].ID)
}

func TestMemoryStoreCommitAdvancesTurn(t *testing.T) {
	store := NewMemoryStore(testGenesis())

	next, err := store.Commit(store.Current(), Delta{ClockAdvance: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, next.Turn)
	assert.Equal(t, 1, store.Current().Turn)
	assert.False(t, next.CommittedAt.IsZero())
}

func TestMemoryStoreStaleCommitRejected(t *testing.T) {
	store := NewMemoryStore(testGenesis())
	stale := store.Current()

	_, err := store.Commit(stale, Delta{ClockAdvance: 10})
	require.NoError(t, err)

	_, err = store.Commit(stale, Delta{ClockAdvance: 10})
	assert.ErrorIs(t, err, ErrStaleCommit)
	// The failed commit left the store untouched.
	assert.Equal(t, 1, store.Current().Turn)
}

func TestMemoryStoreRestoreRewindsWithoutDeleting(t *testing.T) {
	store := NewMemoryStore(testGenesis())
	for i := 0; i < 3; i++ {
		_, err := store.Commit(store.Current(), Delta{ClockAdvance: 10})
		require.NoError(t, err)
	}

	restored, err := store.Restore(1)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Turn)
	assert.Equal(t, 1, store.Current().Turn)

	// Newer snapshots are still retrievable after the rewind.
	later, err := store.Snapshot(3)
	require.NoError(t, err)
	assert.Equal(t, 3, later.Turn)
}

func TestMemoryStoreCommitAfterRestoreBranches(t *testing.T) {
	store := NewMemoryStore(testGenesis())
	for i := 0; i < 3; i++ {
		_, err := store.Commit(store.Current(), Delta{ClockAdvance: 10})
		require.NoError(t, err)
	}

	_, err := store.Restore(1)
	require.NoError(t, err)

	branched, err := store.Commit(store.Current(), Delta{Location: strptr("cellar")})
	require.NoError(t, err)
	assert.Equal(t, 2, branched.Turn)

	reread, err := store.Snapshot(2)
	require.NoError(t, err)
	assert.Equal(t, "cellar", reread.Location)
}

func TestMemoryStoreRestoreUnknownTurn(t *testing.T) {
	store := NewMemoryStore(testGenesis())
	_, err := store.Restore(42)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestMemoryStoreHistoryNewestFirst(t *testing.T) {
	store := NewMemoryStore(testGenesis())
	for i := 0; i < 4; i++ {
		_, err := store.Commit(store.Current(), Delta{ClockAdvance: 10})
		require.NoError(t, err)
	}

	metas, err := store.History(3)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, 4, metas[0].Turn)
	assert.Equal(t, 2, metas[2].Turn)
}

func TestSQLiteStoreCommitAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.db")

	store, err := OpenSQLiteStore(path, testGenesis())
	require.NoError(t, err)

	committed, err := store.Commit(store.Current(), Delta{
		ClockAdvance: 10,
		Location:     strptr("cellar"),
		AmbientAdd:   []string{"dust"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening resumes from the latest committed turn; genesis is ignored.
	reopened, err := OpenSQLiteStore(path, Snapshot{Location: "elsewhere", Actors: []ActorState{{ID: "x"}}})
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	current := reopened.Current()
	assert.Equal(t, committed.Turn, current.Turn)
	assert.Equal(t, "cellar", current.Location)
	assert.Equal(t, committed.Clock, current.Clock)
	assert.Equal(t, committed.Ambient, current.Ambient)
}

func TestSQLiteStoreRestoreMatchesCommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.db")

	store, err := OpenSQLiteStore(path, testGenesis())
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	first, err := store.Commit(store.Current(), Delta{
		ClockAdvance: 15,
		ActorUpdates: []ActorUpdate{{ID: "mira", Mood: strptr("tense"), MarkSeen: true}},
	})
	require.NoError(t, err)
	_, err = store.Commit(store.Current(), Delta{ClockAdvance: 15})
	require.NoError(t, err)

	restored, err := store.Restore(1)
	require.NoError(t, err)
	assert.Equal(t, first.Turn, restored.Turn)
	assert.Equal(t, first.Clock, restored.Clock)
	assert.Equal(t, first.Actors, restored.Actors)
}

func TestSQLiteStoreStaleCommitRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.db")

	store, err := OpenSQLiteStore(path, testGenesis())
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	stale := store.Current()
	_, err = store.Commit(stale, Delta{ClockAdvance: 10})
	require.NoError(t, err)

	_, err = store.Commit(stale, Delta{ClockAdvance: 10})
	assert.ErrorIs(t, err, ErrStaleCommit)
}

func TestSQLiteStoreDamagedSchemaIsNotReseeded(t *testing.T) {
	// A snapshots table that lost its columns must surface as an error, not
	// as an empty database to quietly seed genesis over.
	path := filepath.Join(t.TempDir(), "world.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE snapshots (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenSQLiteStore(path, testGenesis())
	require.Error(t, err)
	assert.ErrorContains(t, err, "read latest turn")
}

func TestSQLiteStoreHistorySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.db")

	store, err := OpenSQLiteStore(path, testGenesis())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.Commit(store.Current(), Delta{ClockAdvance: 10})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path, testGenesis())
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	metas, err := reopened.History(10)
	require.NoError(t, err)
	require.Len(t, metas, 4)
	assert.Equal(t, 3, metas[0].Turn)
	assert.Equal(t, 0, metas[3].Turn)
}
