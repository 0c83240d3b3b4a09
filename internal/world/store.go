package world

import (
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned when a turn has no committed snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrStaleCommit is returned when Commit is handed a snapshot that is no
// longer current; the store is left untouched.
var ErrStaleCommit = errors.New("commit against stale snapshot")

// SnapshotMetadata is the lightweight listing view of a committed snapshot.
type SnapshotMetadata struct {
	Turn        int       `json:"turn"`
	Location    string    `json:"location"`
	Clock       string    `json:"clock"`
	CommittedAt time.Time `json:"committed_at"`
}

// Store owns the single authoritative snapshot. Commit is the only write
// path and is atomic: either the next snapshot is fully persisted and
// becomes current, or the store stays exactly at the prior one. History is
// append-only; Restore rewinds the current pointer without deleting newer
// turns, so a later commit branches over them.
type Store interface {
	// Current returns the committed snapshot the next turn must build on.
	Current() Snapshot
	// Commit derives Snapshot(t+1) from prev plus the merged delta. prev
	// must be the current snapshot, otherwise ErrStaleCommit.
	Commit(prev Snapshot, delta Delta) (Snapshot, error)
	// Restore makes the snapshot committed at turn the current one.
	Restore(turn int) (Snapshot, error)
	// Snapshot returns the snapshot committed at the given turn.
	Snapshot(turn int) (Snapshot, error)
	// History lists committed snapshots, newest first, bounded by limit.
	History(limit int) ([]SnapshotMetadata, error)
	Close() error
}

func metadataOf(s Snapshot) SnapshotMetadata {
	return SnapshotMetadata{
		Turn:        s.Turn,
		Location:    s.Location,
		Clock:       s.ClockString(),
		CommittedAt: s.CommittedAt,
	}
}
