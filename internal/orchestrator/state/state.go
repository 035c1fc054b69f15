// Package state holds the mutable record of in-flight pipeline runs and
// the concurrency-safe registry that owns them.
package state

import (
	"encoding/json"
	"time"

	"github.com/go-conveyor/conveyor/internal/orchestrator/graph"
)

// StageRuntime tracks the progress of one stage within a pipeline run.
type StageRuntime struct {
	Status    StageStatus
	StartTime *time.Time
	EndTime   *time.Time
	Retries   uint
	Results   json.RawMessage
}

// PipelineState is the authoritative record of one pipeline run. All
// mutation goes through the owning Store's per-pipeline lock.
type PipelineState struct {
	ID     string
	Repo   string
	Branch string
	Graph  *graph.StageGraph

	Stages    map[string]*StageRuntime
	Status    PipelineStatus
	StartTime time.Time
	EndTime   *time.Time
}

// New creates the run record with one pending StageRuntime per stage.
func New(id, repo, branch string, g *graph.StageGraph, now time.Time) *PipelineState {
	stages := make(map[string]*StageRuntime, g.Len())
	for _, name := range g.StageNames() {
		stages[name] = &StageRuntime{Status: StagePending}
	}
	return &PipelineState{
		ID:        id,
		Repo:      repo,
		Branch:    branch,
		Graph:     g,
		Stages:    stages,
		Status:    PipelinePending,
		StartTime: now,
	}
}

// Recompute derives the pipeline status from the stages map. The priority
// order is a deliberate tie-break: an exhausted failure wins over
// everything else, and terminates the run fail-fast, skipping stages that
// never started.
func (p *PipelineState) Recompute(now time.Time) PipelineStatus {
	if p.exhaustedFailure() {
		p.Status = PipelineFailed
		for _, s := range p.Stages {
			if s.Status == StagePending {
				s.Status = StageSkipped
				t := now
				s.EndTime = &t
			}
		}
		if p.EndTime == nil {
			t := now
			p.EndTime = &t
		}
		return p.Status
	}

	allSuccess := true
	anyRunning := false
	for _, s := range p.Stages {
		if s.Status != StageSuccess {
			allSuccess = false
		}
		if s.Status == StageRunning {
			anyRunning = true
		}
	}

	switch {
	case allSuccess:
		p.Status = PipelineSuccess
		if p.EndTime == nil {
			t := now
			p.EndTime = &t
		}
	case anyRunning:
		p.Status = PipelineRunning
	default:
		p.Status = PipelinePending
	}
	return p.Status
}

// exhaustedFailure reports whether any stage failed with no retry budget
// left.
func (p *PipelineState) exhaustedFailure() bool {
	for name, s := range p.Stages {
		if s.Status != StageFailed {
			continue
		}
		def, ok := p.Graph.Stage(name)
		if ok && s.Retries >= def.MaxRetries {
			return true
		}
	}
	return false
}

// SuccessSet returns the names of all succeeded stages.
func (p *PipelineState) SuccessSet() map[string]bool {
	done := make(map[string]bool)
	for name, s := range p.Stages {
		if s.Status == StageSuccess {
			done[name] = true
		}
	}
	return done
}

// LatestActivity returns the most recent stage timestamp, falling back to
// the pipeline start time. The Reaper measures staleness against it.
func (p *PipelineState) LatestActivity() time.Time {
	latest := p.StartTime
	for _, s := range p.Stages {
		if s.StartTime != nil && s.StartTime.After(latest) {
			latest = *s.StartTime
		}
		if s.EndTime != nil && s.EndTime.After(latest) {
			latest = *s.EndTime
		}
	}
	return latest
}

// StageSnapshot is a point-in-time copy of one stage's runtime.
type StageSnapshot struct {
	Status    StageStatus `json:"status"`
	Retries   uint        `json:"retries"`
	StartTime *time.Time  `json:"start_time,omitempty"`
	EndTime   *time.Time  `json:"end_time,omitempty"`

	NotifyOnSuccess bool `json:"-"`
	NotifyOnFailure bool `json:"-"`
}

// Snapshot is a point-in-time deep copy of a run, safe to read without
// holding the pipeline lock.
type Snapshot struct {
	PipelineID string                   `json:"pipeline_id"`
	Repo       string                   `json:"repo"`
	Branch     string                   `json:"branch"`
	Status     PipelineStatus           `json:"status"`
	StartTime  time.Time                `json:"start_time"`
	EndTime    *time.Time               `json:"end_time,omitempty"`
	Stages     map[string]StageSnapshot `json:"stages"`

	NotifyOnSuccess bool `json:"-"`
	NotifyOnFailure bool `json:"-"`
}

// Snapshot copies the current run state.
func (p *PipelineState) Snapshot() Snapshot {
	stages := make(map[string]StageSnapshot, len(p.Stages))
	for name, s := range p.Stages {
		snap := StageSnapshot{
			Status:  s.Status,
			Retries: s.Retries,
		}
		if s.StartTime != nil {
			t := *s.StartTime
			snap.StartTime = &t
		}
		if s.EndTime != nil {
			t := *s.EndTime
			snap.EndTime = &t
		}
		if def, ok := p.Graph.Stage(name); ok {
			snap.NotifyOnSuccess = def.NotifyOnSuccess
			snap.NotifyOnFailure = def.NotifyOnFailure
		}
		stages[name] = snap
	}

	snap := Snapshot{
		PipelineID:      p.ID,
		Repo:            p.Repo,
		Branch:          p.Branch,
		Status:          p.Status,
		StartTime:       p.StartTime,
		Stages:          stages,
		NotifyOnSuccess: p.Graph.NotifyOnSuccess,
		NotifyOnFailure: p.Graph.NotifyOnFailure,
	}
	if p.EndTime != nil {
		t := *p.EndTime
		snap.EndTime = &t
	}
	return snap
}
