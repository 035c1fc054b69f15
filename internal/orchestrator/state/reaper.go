package state

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/go-conveyor/conveyor/pkg/log"
)

const (
	// DefaultReapInterval is how often the reaper scans the store.
	DefaultReapInterval = time.Hour
	// DefaultTTL is how long a run may stay idle before eviction.
	DefaultTTL = 24 * time.Hour
)

// Reaper periodically evicts runs whose latest stage activity exceeds the
// TTL. Before deleting, it invokes onEvict so pending retry timers for
// the run are cancelled and cannot fire against state that no longer
// exists.
type Reaper struct {
	store    *Store
	interval time.Duration
	ttl      time.Duration
	onEvict  func(pipelineID string)
	cron     *cron.Cron
}

// NewReaper creates a stopped Reaper. Zero interval or ttl fall back to
// the defaults.
func NewReaper(store *Store, interval, ttl time.Duration, onEvict func(pipelineID string)) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Reaper{
		store:    store,
		interval: interval,
		ttl:      ttl,
		onEvict:  onEvict,
	}
}

// Start schedules the periodic scan.
func (r *Reaper) Start() error {
	r.cron = cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, func() { r.RunOnce(time.Now()) }); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the periodic scan. Running scans complete.
func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce performs a single eviction pass and returns the evicted ids.
func (r *Reaper) RunOnce(now time.Time) []string {
	expired := r.store.Expired(now, r.ttl)
	for _, pipelineID := range expired {
		if r.onEvict != nil {
			r.onEvict(pipelineID)
		}
		r.store.Delete(pipelineID)
		log.Infof("reaped stale pipeline %s", pipelineID)
	}
	return expired
}
