package state

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrUnknownPipeline is returned when an operation references a pipeline
// the store no longer tracks. Callers log and discard; it never
// propagates to the bus or API caller (beyond a not-found envelope).
var ErrUnknownPipeline = errors.New("unknown pipeline")

type entry struct {
	mu    sync.Mutex
	state *PipelineState
}

// Store is the single authoritative registry of in-flight pipeline runs.
// Mutation of one entry is serialized by a per-pipeline lock; operations
// on distinct pipelines never block each other.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty Store. One instance is created at process
// start and passed to every component; there is no ambient global.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Put registers a new run. It replaces any record with the same id.
func (s *Store) Put(p *PipelineState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.ID] = &entry{state: p}
}

// WithLock runs fn with exclusive access to the pipeline's state. The
// store-level lock is released before fn runs, so slow work on one
// pipeline cannot stall others.
func (s *Store) WithLock(id string, fn func(p *PipelineState) error) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownPipeline
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

// Snapshot returns a deep copy of one run.
func (s *Store) Snapshot(id string) (Snapshot, error) {
	var snap Snapshot
	err := s.WithLock(id, func(p *PipelineState) error {
		snap = p.Snapshot()
		return nil
	})
	return snap, err
}

// Snapshots returns copies of all tracked runs, newest first.
func (s *Store) Snapshots() []Snapshot {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := s.Snapshot(id); err == nil {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].StartTime.After(snaps[j].StartTime)
	})
	return snaps
}

// Delete removes a run from the registry.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len returns the number of tracked runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Expired returns the ids of runs whose latest stage activity is older
// than ttl at the given instant.
func (s *Store) Expired(now time.Time, ttl time.Duration) []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var expired []string
	for _, id := range ids {
		_ = s.WithLock(id, func(p *PipelineState) error {
			if now.Sub(p.LatestActivity()) > ttl {
				expired = append(expired, id)
			}
			return nil
		})
	}
	sort.Strings(expired)
	return expired
}
