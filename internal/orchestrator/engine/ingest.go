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

// Notifier receives stage and pipeline completion events. Implementations
// must tolerate being called for events the policy later suppresses; the
// dispatcher owns the policy check.
type Notifier interface {
	NotifyStage(snap state.Snapshot, stage string)
	NotifyPipeline(snap state.Snapshot)
}

// outcome classifies what a result did to the run, decided under the
// pipeline lock and acted on after it is released.
type outcome int

const (
	outcomeDropped outcome = iota
	outcomeRetry
	outcomeAdvance
	outcomeTerminal
)

// Ingestor consumes stage results and applies them to pipeline state. It
// never returns an error for a bad payload: a malformed or stale result
// is logged and dropped so the bus does not redeliver it forever.
type Ingestor struct {
	store     *state.Store
	scheduler *Scheduler
	retries   *RetryTimer
	notifier  Notifier
}

// NewIngestor creates an Ingestor.
func NewIngestor(store *state.Store, scheduler *Scheduler, retries *RetryTimer, notifier Notifier) *Ingestor {
	return &Ingestor{
		store:     store,
		scheduler: scheduler,
		retries:   retries,
		notifier:  notifier,
	}
}

// HandleResult processes one result message from the bus.
func (i *Ingestor) HandleResult(ctx context.Context, msg *bus.Message) error {
	var res ResultMessage
	if err := json.Unmarshal(msg.Value, &res); err != nil {
		resultsDropped.WithLabelValues("malformed").Inc()
		log.Errorf("dropping malformed result on %s: %v", msg.Topic, err)
		return nil
	}
	if res.PipelineID == "" || res.Stage == "" {
		resultsDropped.WithLabelValues("malformed").Inc()
		log.Errorf("dropping result with empty pipeline or stage on %s", msg.Topic)
		return nil
	}

	var (
		out    outcome
		ticket Ticket
		snap   state.Snapshot
	)

	err := i.store.WithLock(res.PipelineID, func(p *state.PipelineState) error {
		out = i.apply(p, &res, &ticket)
		snap = p.Snapshot()
		return nil
	})
	if err != nil {
		if errors.Is(err, state.ErrUnknownPipeline) {
			resultsDropped.WithLabelValues("unknown_pipeline").Inc()
			log.Warnf("dropping result for unknown pipeline %s (stage %s)", res.PipelineID, res.Stage)
			return nil
		}
		return err
	}

	if out == outcomeDropped {
		return nil
	}

	// Side effects happen after the lock is released: notification and
	// publish latency must not serialize ingestion.
	i.notifier.NotifyStage(snap, res.Stage)

	switch out {
	case outcomeRetry:
		retriesScheduled.WithLabelValues(res.Stage).Inc()
		i.retries.Schedule(ticket)
		log.Infof("stage %s of pipeline %s failed, retry %d scheduled", res.Stage, res.PipelineID, ticket.Attempt)
	case outcomeTerminal:
		pipelinesCompleted.WithLabelValues(string(snap.Status)).Inc()
		i.notifier.NotifyPipeline(snap)
		log.Infof("pipeline %s finished with status %s", res.PipelineID, snap.Status)
	case outcomeAdvance:
		if err := i.scheduler.Advance(res.PipelineID); err != nil {
			log.Errorf("failed to advance pipeline %s: %v", res.PipelineID, err)
		}
	}
	return nil
}

// apply mutates the run under the pipeline lock and classifies the
// result. A ticket is filled in only for the retry outcome.
func (i *Ingestor) apply(p *state.PipelineState, res *ResultMessage, ticket *Ticket) outcome {
	sr, ok := p.Stages[res.Stage]
	if !ok {
		resultsDropped.WithLabelValues("unknown_stage").Inc()
		log.Warnf("dropping result for unknown stage %s in pipeline %s", res.Stage, p.ID)
		return outcomeDropped
	}

	// Highest attempt wins: a result echoing an older attempt lost the
	// race against a retry that is already in flight.
	if res.Attempt < sr.Retries {
		resultsDropped.WithLabelValues("stale_attempt").Inc()
		log.Warnf("dropping stale result for stage %s of pipeline %s (attempt %d, current %d)",
			res.Stage, p.ID, res.Attempt, sr.Retries)
		return outcomeDropped
	}

	now := time.Now()
	t := now
	sr.EndTime = &t
	sr.Results = res.Results
	if res.Success {
		sr.Status = state.StageSuccess
	} else {
		sr.Status = state.StageFailed
	}

	if !res.Success {
		def, _ := p.Graph.Stage(res.Stage)
		if sr.Retries < def.MaxRetries {
			// Budget left: increment now so any later duplicate of this
			// attempt is recognized as stale, and leave the pipeline
			// status untouched while the retry is pending.
			sr.Retries++
			*ticket = Ticket{PipelineID: p.ID, Stage: res.Stage, Attempt: sr.Retries}
			return outcomeRetry
		}
	}

	wasTerminal := p.Status.IsTerminal()
	p.Recompute(now)
	if p.Status.IsTerminal() && !wasTerminal {
		return outcomeTerminal
	}
	// Already-terminal runs still take the advance path: it notifies the
	// stage and Advance itself is a no-op on terminal pipelines.
	return outcomeAdvance
}
