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
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/go-conveyor/conveyor/internal/orchestrator/state"
	"github.com/go-conveyor/conveyor/pkg/bus"
	"github.com/go-conveyor/conveyor/pkg/log"
)

// Scheduler decides which stages to dispatch next and publishes the
// stage-work messages. Messages are published after the pipeline lock is
// released so a slow broker cannot stall ingestion of unrelated results.
type Scheduler struct {
	store          *state.Store
	broker         bus.Broker
	publishTimeout time.Duration
}

// NewScheduler creates a Scheduler.
func NewScheduler(store *state.Store, broker bus.Broker, publishTimeout time.Duration) *Scheduler {
	if publishTimeout <= 0 {
		publishTimeout = bus.DefaultPublishTimeout
	}
	return &Scheduler{
		store:          store,
		broker:         broker,
		publishTimeout: publishTimeout,
	}
}

// Start marks the dependency-free stages running and dispatches them.
func (s *Scheduler) Start(pipelineID string) error {
	var msgs []DispatchMessage
	err := s.store.WithLock(pipelineID, func(p *state.PipelineState) error {
		if p.Status.IsTerminal() {
			return nil
		}
		now := time.Now()
		for _, stage := range p.Graph.InitialStages() {
			msgs = append(msgs, markRunning(p, stage, now))
		}
		p.Recompute(now)
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(msgs)
	return nil
}

// Advance dispatches every pending stage whose dependencies have all
// succeeded, in a single pass. Siblings are fanned out with no ordering
// guarantee between them. No-op when the pipeline is already terminal.
func (s *Scheduler) Advance(pipelineID string) error {
	var msgs []DispatchMessage
	err := s.store.WithLock(pipelineID, func(p *state.PipelineState) error {
		if p.Status.IsTerminal() {
			return nil
		}
		now := time.Now()
		for _, stage := range p.Graph.Schedulable(p.SuccessSet()) {
			if p.Stages[stage].Status != state.StagePending {
				continue
			}
			msgs = append(msgs, markRunning(p, stage, now))
		}
		p.Recompute(now)
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(msgs)
	return nil
}

// Redispatch re-runs a failed stage for its next attempt. Invoked by the
// retry timer; the retry count was already incremented when the ticket
// was scheduled.
func (s *Scheduler) Redispatch(pipelineID, stage string, attempt uint) error {
	var msgs []DispatchMessage
	err := s.store.WithLock(pipelineID, func(p *state.PipelineState) error {
		sr, ok := p.Stages[stage]
		if !ok {
			return errors.Errorf("unknown stage %q in pipeline %s", stage, pipelineID)
		}
		if sr.Status != state.StageFailed || sr.Retries != attempt {
			// a newer result already superseded this ticket
			return nil
		}
		now := time.Now()
		msgs = append(msgs, markRunning(p, stage, now))
		p.Recompute(now)
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(msgs)
	return nil
}

// markRunning transitions a stage to running and builds its dispatch
// message. Caller holds the pipeline lock.
func markRunning(p *state.PipelineState, stage string, now time.Time) DispatchMessage {
	sr := p.Stages[stage]
	sr.Status = state.StageRunning
	t := now
	sr.StartTime = &t
	sr.EndTime = nil

	return DispatchMessage{
		PipelineID: p.ID,
		Repo:       p.Repo,
		Branch:     p.Branch,
		Stage:      stage,
		Attempt:    sr.Retries,
		Timestamp:  now,
	}
}

// publish sends the dispatch messages outside any pipeline lock. A
// publish failure is logged and swallowed: the stage stays running and
// needs an external timeout to recover, per the at-least-once contract.
func (s *Scheduler) publish(msgs []DispatchMessage) {
	for _, m := range msgs {
		value, err := json.Marshal(m)
		if err != nil {
			log.Errorf("failed to encode dispatch for %s/%s: %v", m.PipelineID, m.Stage, err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		err = s.broker.Publish(ctx, &bus.Message{
			Topic: StageTopic(m.Stage),
			Key:   m.Key(),
			Value: value,
		})
		cancel()
		if err != nil {
			dispatchFailures.WithLabelValues(m.Stage).Inc()
			log.Errorf("failed to dispatch stage %s for pipeline %s: %v", m.Stage, m.PipelineID, err)
			continue
		}

		stagesDispatched.WithLabelValues(m.Stage).Inc()
		log.Infof("dispatched stage %s for pipeline %s (attempt %d)", m.Stage, m.PipelineID, m.Attempt)
	}
}
