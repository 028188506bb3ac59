package api

import (
	"context"
	"sync"

	"github.com/samcharles93/autoflex/internal/flex"
)

// SnapshotStore keeps the most recent diagnostic snapshots in memory. It is a
// flex.DiagnosticSink, so a manager can feed it directly or through a fan-out.
type SnapshotStore struct {
	mu    sync.Mutex
	ring  []flex.Snapshot
	head  int
	count int
	total int64
}

func NewSnapshotStore(capacity int) *SnapshotStore {
	if capacity <= 0 {
		capacity = 256
	}
	return &SnapshotStore{ring: make([]flex.Snapshot, capacity)}
}

func (s *SnapshotStore) Write(_ context.Context, snap flex.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.head] = snap
	s.head = (s.head + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	s.total++
	return nil
}

func (s *SnapshotStore) Close() error { return nil }

// Recent returns up to limit snapshots, oldest first. A non-positive limit
// returns everything kept.
func (s *SnapshotStore) Recent(limit int) []flex.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]flex.Snapshot, 0, n)
	start := (s.head - n + len(s.ring)) % len(s.ring)
	for i := range n {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}

// Len returns the number of snapshots kept and the number ever written.
func (s *SnapshotStore) Len() (kept int, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.total
}
