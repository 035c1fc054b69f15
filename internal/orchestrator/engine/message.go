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
	"encoding/json"
	"time"
)

const (
	// TopicResults is where agents publish stage results.
	TopicResults = "agent.results"
	// ResultsGroup is the consumer group for result ingestion. A single
	// logical group guarantees each result is processed once.
	ResultsGroup = "orchestrator-results-handler"

	stageTopicPrefix = "agent."
)

// StageTopic returns the dispatch topic for a stage.
func StageTopic(stage string) string {
	return stageTopicPrefix + stage
}

// DispatchMessage is the stage-work payload sent to agents. Delivery is
// at-least-once; agents deduplicate by (pipeline_id, stage, attempt).
type DispatchMessage struct {
	PipelineID string    `json:"pipeline_id"`
	Repo       string    `json:"repo"`
	Branch     string    `json:"branch"`
	Stage      string    `json:"stage"`
	Attempt    uint      `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key returns the partition key. Keying by repo and branch preserves
// per-repository ordering on the bus.
func (m DispatchMessage) Key() string {
	return m.Repo + "-" + m.Branch
}

// ResultMessage is the stage-result payload received from agents. Agents
// echo the attempt from the dispatch so stale retry results can be told
// apart from current ones.
type ResultMessage struct {
	PipelineID string          `json:"pipeline_id"`
	Stage      string          `json:"stage"`
	Success    bool            `json:"success"`
	Attempt    uint            `json:"attempt"`
	Results    json.RawMessage `json:"results,omitempty"`
}
