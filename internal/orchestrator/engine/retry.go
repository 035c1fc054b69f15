// Copyright 2025 Conveyor Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"sync"
	"time"

	"github.com/go-conveyor/conveyor/pkg/safe"
)

// DefaultRetryDelay is the fixed wait before a failed stage is re-run.
// Fixed rather than exponential: the budget is small and human-scale, so
// a constant pause that avoids hammering failing infrastructure is
// enough.
const DefaultRetryDelay = 60 * time.Second

// Ticket identifies one scheduled retry.
type Ticket struct {
	PipelineID string
	Stage      string
	Attempt    uint
}

// RetryTimer arms one-shot timers for failed stages and re-dispatches
// them when they fire. Tickets are keyed so the Reaper can cancel every
// pending retry of an evicted pipeline.
type RetryTimer struct {
	mu      sync.Mutex
	timers  map[Ticket]*time.Timer
	delay   time.Duration
	fire    func(pipelineID, stage string, attempt uint)
	stopped bool
}

// NewRetryTimer creates a RetryTimer invoking fire after delay for each
// scheduled ticket.
func NewRetryTimer(delay time.Duration, fire func(pipelineID, stage string, attempt uint)) *RetryTimer {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &RetryTimer{
		timers: make(map[Ticket]*time.Timer),
		delay:  delay,
		fire:   fire,
	}
}

// Schedule arms a one-shot timer for the ticket. Scheduling an already
// armed ticket is a no-op.
func (r *RetryTimer) Schedule(t Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if _, ok := r.timers[t]; ok {
		return
	}

	r.timers[t] = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		_, live := r.timers[t]
		delete(r.timers, t)
		stopped := r.stopped
		r.mu.Unlock()

		if !live || stopped {
			return
		}
		safe.Do(func() {
			r.fire(t.PipelineID, t.Stage, t.Attempt)
		})
	})
}

// CancelAll disarms every pending retry for the pipeline. Invoked by the
// Reaper before eviction.
func (r *RetryTimer) CancelAll(pipelineID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, timer := range r.timers {
		if t.PipelineID == pipelineID {
			timer.Stop()
			delete(r.timers, t)
		}
	}
}

// Stop disarms all timers and rejects further scheduling.
func (r *RetryTimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for t, timer := range r.timers {
		timer.Stop()
		delete(r.timers, t)
	}
}

// Pending returns the number of armed tickets.
func (r *RetryTimer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
