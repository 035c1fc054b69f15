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

package state

// PipelineStatus is the status of one pipeline run.
type PipelineStatus string

const (
	PipelinePending PipelineStatus = "pending"
	PipelineRunning PipelineStatus = "running"
	PipelineSuccess PipelineStatus = "success"
	PipelineFailed  PipelineStatus = "failed"
)

// IsTerminal reports whether no further transitions can occur.
func (s PipelineStatus) IsTerminal() bool {
	return s == PipelineSuccess || s == PipelineFailed
}

// StageStatus is the status of one stage within a pipeline run.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageRunning StageStatus = "running"
	StageSuccess StageStatus = "success"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// IsFinished reports whether the stage has reached a final status.
func (s StageStatus) IsFinished() bool {
	return s == StageSuccess || s == StageFailed || s == StageSkipped
}
