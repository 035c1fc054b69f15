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

// Package engine wires the scheduler, result ingestion, retry timer and
// reaper into the pipeline orchestration core.
package engine

import (
	"context"
	"time"

	"github.com/go-conveyor/conveyor/internal/orchestrator/graph"
	"github.com/go-conveyor/conveyor/internal/orchestrator/state"
	"github.com/go-conveyor/conveyor/pkg/bus"
	"github.com/go-conveyor/conveyor/pkg/id"
	"github.com/go-conveyor/conveyor/pkg/log"
	"github.com/go-conveyor/conveyor/pkg/safe"
)

// Conf tunes the engine. Zero values fall back to the package defaults.
type Conf struct {
	RetryDelay     time.Duration
	PublishTimeout time.Duration
	ReapInterval   time.Duration
	TTL            time.Duration
}

// Engine is the orchestration core. One instance owns the run store and
// every background worker that mutates it.
type Engine struct {
	store     *state.Store
	broker    bus.Broker
	loader    *graph.Loader
	scheduler *Scheduler
	ingestor  *Ingestor
	retries   *RetryTimer
	reaper    *state.Reaper

	cancel context.CancelFunc
	done   chan struct{}
}

// New assembles an Engine. Start must be called before results are
// consumed.
func New(conf Conf, store *state.Store, broker bus.Broker, loader *graph.Loader, notifier Notifier) *Engine {
	e := &Engine{
		store:  store,
		broker: broker,
		loader: loader,
	}
	e.scheduler = NewScheduler(store, broker, conf.PublishTimeout)
	e.retries = NewRetryTimer(conf.RetryDelay, func(pipelineID, stage string, attempt uint) {
		if err := e.scheduler.Redispatch(pipelineID, stage, attempt); err != nil {
			log.Errorf("failed to redispatch stage %s for pipeline %s: %v", stage, pipelineID, err)
		}
	})
	e.ingestor = NewIngestor(store, e.scheduler, e.retries, notifier)
	e.reaper = state.NewReaper(store, conf.ReapInterval, conf.TTL, e.retries.CancelAll)
	return e
}

// Start launches the reaper and the result consumer. The consumer loop
// reconnects on error until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.reaper.Start(); err != nil {
		return err
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	safe.Go(func() {
		defer close(e.done)
		for {
			err := e.broker.Subscribe(ctx, []string{TopicResults}, e.ingestor.HandleResult)
			if ctx.Err() != nil {
				return
			}
			log.Errorf("result consumer exited: %v, reconnecting in 5s", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	})

	log.Infof("engine started, consuming %s", TopicResults)
	return nil
}

// Stop shuts down the consumer, retry timers and reaper. Pending retries
// are discarded; an operator restart relies on new webhook events.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	e.retries.Stop()
	e.reaper.Stop()
	log.Info("engine stopped")
}

// CreatePipeline resolves the stage graph for the repository, registers a
// new run and dispatches its initial stages. It returns the run id.
func (e *Engine) CreatePipeline(repo, branch string) (string, error) {
	g, err := e.loader.ForRepo(repo)
	if err != nil {
		return "", err
	}

	now := time.Now()
	pipelineID := id.Pipeline(repo, branch, now)
	e.store.Put(state.New(pipelineID, repo, branch, g, now))
	pipelinesCreated.Inc()
	log.Infof("created pipeline %s for %s@%s (%d stages)", pipelineID, repo, branch, g.Len())

	if err := e.scheduler.Start(pipelineID); err != nil {
		return "", err
	}
	return pipelineID, nil
}

// GetPipeline returns a snapshot of one run.
func (e *Engine) GetPipeline(pipelineID string) (state.Snapshot, error) {
	return e.store.Snapshot(pipelineID)
}

// ListPipelines returns snapshots of all tracked runs, newest first.
func (e *Engine) ListPipelines() []state.Snapshot {
	return e.store.Snapshots()
}
