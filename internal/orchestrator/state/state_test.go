package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-conveyor/conveyor/internal/orchestrator/graph"
)

func testGraph(t *testing.T) *graph.StageGraph {
	t.Helper()
	g, err := graph.Build("default", []graph.StageDefinition{
		{Name: "lint"},
		{Name: "test", Dependencies: []string{"lint"}},
		{Name: "build", Dependencies: []string{"test"}},
		{Name: "security", Dependencies: []string{"test"}},
	}, graph.Defaults{MaxRetries: 3, NotifyOnFailure: true})
	require.NoError(t, err)
	return g
}

func newRun(t *testing.T) *PipelineState {
	t.Helper()
	return New("acme-widgets-main-20250314150926-abc", "acme/widgets", "main", testGraph(t), time.Now())
}

func markRunning(p *PipelineState, stage string, at time.Time) {
	s := p.Stages[stage]
	s.Status = StageRunning
	s.StartTime = &at
}

func markFinished(p *PipelineState, stage string, st StageStatus, at time.Time) {
	s := p.Stages[stage]
	s.Status = st
	s.EndTime = &at
}

func TestNewCreatesPendingStages(t *testing.T) {
	p := newRun(t)

	assert.Equal(t, PipelinePending, p.Status)
	assert.Len(t, p.Stages, 4)
	for name, s := range p.Stages {
		assert.Equal(t, StagePending, s.Status, name)
		assert.Nil(t, s.StartTime, name)
		assert.Zero(t, s.Retries, name)
	}
}

func TestRecomputePending(t *testing.T) {
	p := newRun(t)
	assert.Equal(t, PipelinePending, p.Recompute(time.Now()))
}

func TestRecomputeRunning(t *testing.T) {
	p := newRun(t)
	markRunning(p, "lint", time.Now())
	assert.Equal(t, PipelineRunning, p.Recompute(time.Now()))
	assert.Nil(t, p.EndTime)
}

func TestRecomputeSuccess(t *testing.T) {
	p := newRun(t)
	now := time.Now()
	for name := range p.Stages {
		markFinished(p, name, StageSuccess, now)
	}

	assert.Equal(t, PipelineSuccess, p.Recompute(now))
	require.NotNil(t, p.EndTime)
}

func TestRecomputeExhaustedFailureSkipsPending(t *testing.T) {
	p := newRun(t)
	now := time.Now()
	markFinished(p, "lint", StageSuccess, now)
	markFinished(p, "test", StageFailed, now)
	p.Stages["test"].Retries = 3 // budget used up

	assert.Equal(t, PipelineFailed, p.Recompute(now))
	assert.Equal(t, StageSkipped, p.Stages["build"].Status)
	assert.Equal(t, StageSkipped, p.Stages["security"].Status)
	require.NotNil(t, p.Stages["build"].EndTime)
	require.NotNil(t, p.EndTime)

	// completed stages are untouched
	assert.Equal(t, StageSuccess, p.Stages["lint"].Status)
}

func TestRecomputeFailureWithBudgetLeftIsNotTerminal(t *testing.T) {
	p := newRun(t)
	now := time.Now()
	markFinished(p, "lint", StageFailed, now)
	p.Stages["lint"].Retries = 1 // 1 of 3 used

	status := p.Recompute(now)
	assert.False(t, status.IsTerminal())
	assert.Equal(t, StagePending, p.Stages["test"].Status)
}

func TestRecomputeFailureWinsOverRunning(t *testing.T) {
	p := newRun(t)
	now := time.Now()
	markFinished(p, "lint", StageFailed, now)
	p.Stages["lint"].Retries = 3
	markRunning(p, "security", now)

	assert.Equal(t, PipelineFailed, p.Recompute(now))
	// a running stage is left as-is; only pending stages are skipped
	assert.Equal(t, StageRunning, p.Stages["security"].Status)
}

func TestSuccessSet(t *testing.T) {
	p := newRun(t)
	now := time.Now()
	markFinished(p, "lint", StageSuccess, now)
	markRunning(p, "test", now)

	assert.Equal(t, map[string]bool{"lint": true}, p.SuccessSet())
}

func TestLatestActivity(t *testing.T) {
	start := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	p := New("p1", "acme/widgets", "main", testGraph(t), start)
	assert.Equal(t, start, p.LatestActivity())

	later := start.Add(10 * time.Minute)
	markRunning(p, "lint", later)
	assert.Equal(t, later, p.LatestActivity())

	end := start.Add(20 * time.Minute)
	markFinished(p, "lint", StageSuccess, end)
	assert.Equal(t, end, p.LatestActivity())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	p := newRun(t)
	now := time.Now()
	markRunning(p, "lint", now)

	snap := p.Snapshot()
	assert.Equal(t, p.ID, snap.PipelineID)
	assert.Equal(t, StageRunning, snap.Stages["lint"].Status)
	assert.True(t, snap.Stages["lint"].NotifyOnFailure)
	assert.True(t, snap.NotifyOnFailure)
	assert.False(t, snap.NotifyOnSuccess)

	// mutating the original must not leak into the snapshot
	markFinished(p, "lint", StageFailed, now)
	assert.Equal(t, StageRunning, snap.Stages["lint"].Status)
}
