package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutAndSnapshot(t *testing.T) {
	s := NewStore()
	p := newRun(t)
	s.Put(p)

	snap, err := s.Snapshot(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, snap.PipelineID)
	assert.Equal(t, 1, s.Len())
}

func TestStoreUnknownPipeline(t *testing.T) {
	s := NewStore()

	_, err := s.Snapshot("nope")
	assert.ErrorIs(t, err, ErrUnknownPipeline)

	err = s.WithLock("nope", func(p *PipelineState) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestStoreWithLockSerializesMutation(t *testing.T) {
	s := NewStore()
	p := newRun(t)
	s.Put(p)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithLock(p.ID, func(p *PipelineState) error {
				p.Stages["lint"].Retries++
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, uint(50), p.Stages["lint"].Retries)
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	p := newRun(t)
	s.Put(p)
	s.Delete(p.ID)

	assert.Equal(t, 0, s.Len())
	_, err := s.Snapshot(p.ID)
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestStoreSnapshotsNewestFirst(t *testing.T) {
	s := NewStore()
	base := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	old := New("old", "acme/widgets", "main", testGraph(t), base)
	recent := New("recent", "acme/widgets", "main", testGraph(t), base.Add(time.Hour))
	s.Put(old)
	s.Put(recent)

	snaps := s.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "recent", snaps[0].PipelineID)
	assert.Equal(t, "old", snaps[1].PipelineID)
}

func TestStoreExpired(t *testing.T) {
	s := NewStore()
	base := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	ttl := 24 * time.Hour

	p := New("p1", "acme/widgets", "main", testGraph(t), base)
	s.Put(p)

	// still queryable just before the TTL elapses
	assert.Empty(t, s.Expired(base.Add(ttl-time.Second), ttl))
	// gone just after
	assert.Equal(t, []string{"p1"}, s.Expired(base.Add(ttl+time.Second), ttl))
}

func TestReaperRunOnce(t *testing.T) {
	s := NewStore()
	base := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	stale := New("stale", "acme/widgets", "main", testGraph(t), base)
	fresh := New("fresh", "acme/widgets", "main", testGraph(t), base.Add(23*time.Hour))
	s.Put(stale)
	s.Put(fresh)

	var cancelled []string
	r := NewReaper(s, time.Hour, 24*time.Hour, func(id string) {
		// retry cancellation must happen while the entry still exists
		assert.Equal(t, 2, s.Len())
		cancelled = append(cancelled, id)
	})

	evicted := r.RunOnce(base.Add(25 * time.Hour))
	assert.Equal(t, []string{"stale"}, evicted)
	assert.Equal(t, []string{"stale"}, cancelled)
	assert.Equal(t, 1, s.Len())

	_, err := s.Snapshot("fresh")
	assert.NoError(t, err)
}

func TestReaperDefaults(t *testing.T) {
	r := NewReaper(NewStore(), 0, 0, nil)
	assert.Equal(t, DefaultReapInterval, r.interval)
	assert.Equal(t, DefaultTTL, r.ttl)
}
