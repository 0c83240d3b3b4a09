package world

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"loom/internal/logging"
)

const snapshotCacheSize = 64

// SQLiteStore persists one record per committed turn, keyed by turn number.
// The table is append-only in spirit: Restore only moves the current
// pointer, and committing past a restore point branches by replacing the
// record for that turn. Historical reads go through an LRU cache.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	current Snapshot
	cache   *lru.Cache[int, Snapshot]
	logger  logging.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if needed) the snapshot database and
// seeds it with the genesis snapshot when empty. When records already exist
// the latest committed turn becomes current and genesis is ignored.
func OpenSQLiteStore(path string, genesis Snapshot) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty snapshot db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	// A single writer keeps commits serialized at the driver level too.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			turn         INTEGER PRIMARY KEY,
			location     TEXT NOT NULL,
			clock        TEXT NOT NULL,
			committed_at TEXT NOT NULL,
			payload      BLOB NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}

	cache, err := lru.New[int, Snapshot](snapshotCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		cache:  cache,
		logger: logging.NewComponentLogger("snapshot-store"),
	}

	latest, err := store.loadLatest()
	switch {
	case err == nil:
		store.current = latest
		store.logger.Info("Resuming world at turn %d (%s)", latest.Turn, latest.ClockString())
	case err == ErrSnapshotNotFound:
		genesis.Turn = 0
		genesis.CommittedAt = time.Now().UTC()
		sortActors(genesis.Actors)
		if err := store.persist(genesis); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed genesis snapshot: %w", err)
		}
		store.current = genesis
		store.logger.Info("Seeded new world at %s", genesis.ClockString())
	default:
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *SQLiteStore) Commit(prev Snapshot, delta Delta) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev.Turn != s.current.Turn {
		return Snapshot{}, ErrStaleCommit
	}

	next := Apply(s.current, delta)
	next.CommittedAt = time.Now().UTC()

	if err := s.persist(next); err != nil {
		// The current pointer is untouched: readers keep seeing the prior
		// snapshot.
		return Snapshot{}, fmt.Errorf("persist snapshot %d: %w", next.Turn, err)
	}

	s.cache.Add(next.Turn, next)
	s.current = next
	return next.Clone(), nil
}

func (s *SQLiteStore) Restore(turn int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load(turn)
	if err != nil {
		return Snapshot{}, err
	}
	s.current = snap
	s.logger.Info("Restored world to turn %d", turn)
	return snap.Clone(), nil
}

func (s *SQLiteStore) Snapshot(turn int) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, err := s.load(turn)
	if err != nil {
		return Snapshot{}, err
	}
	return snap.Clone(), nil
}

func (s *SQLiteStore) History(limit int) ([]SnapshotMetadata, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT turn, location, clock, committed_at
		FROM snapshots ORDER BY turn DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var metas []SnapshotMetadata
	for rows.Next() {
		var meta SnapshotMetadata
		var committedAt string
		if err := rows.Scan(&meta.Turn, &meta.Location, &meta.Clock, &committedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, committedAt); parseErr == nil {
			meta.CommittedAt = ts
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) persist(snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO snapshots (turn, location, clock, committed_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(turn) DO UPDATE SET
			location = excluded.location,
			clock = excluded.clock,
			committed_at = excluded.committed_at,
			payload = excluded.payload`,
		snap.Turn, snap.Location, snap.ClockString(),
		snap.CommittedAt.Format(time.RFC3339Nano), payload)
	return err
}

func (s *SQLiteStore) load(turn int) (Snapshot, error) {
	if cached, ok := s.cache.Get(turn); ok {
		return cached, nil
	}

	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM snapshots WHERE turn = ?`, turn).Scan(&payload)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot %d: %w", turn, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %d: %w", turn, err)
	}

	s.cache.Add(turn, snap)
	return snap, nil
}

func (s *SQLiteStore) loadLatest() (Snapshot, error) {
	var turn sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(turn) FROM snapshots`).Scan(&turn)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read latest turn: %w", err)
	}
	if !turn.Valid {
		// MAX over an empty table yields NULL: a fresh database, not an error.
		return Snapshot{}, ErrSnapshotNotFound
	}
	return s.load(int(turn.Int64))
}
