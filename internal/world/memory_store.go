package world

import (
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by tests and by play sessions
// that do not ask for persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	current   Snapshot
	snapshots map[int]Snapshot
	clock     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore seeds a store with the genesis snapshot as turn 0.
func NewMemoryStore(genesis Snapshot) *MemoryStore {
	genesis.Turn = 0
	genesis.CommittedAt = time.Now().UTC()
	sortActors(genesis.Actors)
	return &MemoryStore{
		current:   genesis,
		snapshots: map[int]Snapshot{0: genesis},
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *MemoryStore) Commit(prev Snapshot, delta Delta) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev.Turn != s.current.Turn {
		return Snapshot{}, ErrStaleCommit
	}

	next := Apply(s.current, delta)
	next.CommittedAt = s.clock()

	s.snapshots[next.Turn] = next
	s.current = next
	return next.Clone(), nil
}

func (s *MemoryStore) Restore(turn int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[turn]
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	s.current = snap
	return snap.Clone(), nil
}

func (s *MemoryStore) Snapshot(turn int) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[turn]
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return snap.Clone(), nil
}

func (s *MemoryStore) History(limit int) ([]SnapshotMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	var metas []SnapshotMetadata
	for turn := s.maxTurnLocked(); turn >= 0 && len(metas) < limit; turn-- {
		if snap, ok := s.snapshots[turn]; ok {
			metas = append(metas, metadataOf(snap))
		}
	}
	return metas, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) maxTurnLocked() int {
	max := 0
	for turn := range s.snapshots {
		if turn > max {
			max = turn
		}
	}
	return max
}
