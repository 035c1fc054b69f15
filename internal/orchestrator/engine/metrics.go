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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelinesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "pipelines_created_total",
		Help:      "Number of pipeline runs created.",
	})

	pipelinesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "pipelines_completed_total",
		Help:      "Number of pipeline runs reaching a terminal status.",
	}, []string{"status"})

	stagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "stages_dispatched_total",
		Help:      "Number of stage-work messages dispatched to agents.",
	}, []string{"stage"})

	dispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "stage_dispatch_failures_total",
		Help:      "Number of stage dispatch publishes that failed.",
	}, []string{"stage"})

	retriesScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "stage_retries_scheduled_total",
		Help:      "Number of stage retries scheduled.",
	}, []string{"stage"})

	resultsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "results_dropped_total",
		Help:      "Number of result events discarded without effect.",
	}, []string{"reason"})
)
