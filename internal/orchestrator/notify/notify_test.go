package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-conveyor/conveyor/internal/orchestrator/state"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []webhookPayload
	failures int
}

func (r *webhookRecorder) handler(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	body, _ := io.ReadAll(req.Body)
	var p webhookPayload
	_ = json.Unmarshal(body, &p)
	r.payloads = append(r.payloads, p)
	w.WriteHeader(http.StatusOK)
}

func (r *webhookRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func newDispatcherForTest(t *testing.T, rec *webhookRecorder) *Dispatcher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)
	return NewDispatcher(Conf{WebhookURL: srv.URL, Timeout: time.Second, Attempts: 3})
}

func failedSnapshot() state.Snapshot {
	end := time.Now()
	return state.Snapshot{
		PipelineID: "acme-api-main-20250101120000-x1",
		Repo:       "acme/api",
		Branch:     "main",
		Status:     state.PipelineFailed,
		EndTime:    &end,
		Stages: map[string]state.StageSnapshot{
			"lint":  {Status: state.StageSuccess, NotifyOnSuccess: true, NotifyOnFailure: true},
			"test":  {Status: state.StageFailed, Retries: 3, NotifyOnSuccess: true, NotifyOnFailure: true},
			"build": {Status: state.StageSkipped, NotifyOnSuccess: true, NotifyOnFailure: true},
		},
		NotifyOnSuccess: true,
		NotifyOnFailure: true,
	}
}

func TestNotifyPipelineFormatsBlocks(t *testing.T) {
	rec := &webhookRecorder{}
	d := newDispatcherForTest(t, rec)

	d.NotifyPipeline(failedSnapshot())

	require.Equal(t, 1, rec.count())
	p := rec.payloads[0]
	assert.Equal(t, "❌ Pipeline acme-api-main-20250101120000-x1 status: FAILED", p.Text)
	require.Len(t, p.Blocks, 3)
	assert.Equal(t, "section", p.Blocks[0].Type)
	assert.Equal(t, "divider", p.Blocks[1].Type)
	assert.Contains(t, p.Blocks[2].Text.Text, "❌ *test*: failed (Retries: 3)")
	assert.Contains(t, p.Blocks[2].Text.Text, "✅ *lint*: success")
	assert.Contains(t, p.Blocks[2].Text.Text, "🔄 *build*: skipped")
}

func TestNotifyPipelinePolicySuppressed(t *testing.T) {
	rec := &webhookRecorder{}
	d := newDispatcherForTest(t, rec)

	snap := failedSnapshot()
	snap.NotifyOnFailure = false
	d.NotifyPipeline(snap)

	snap = failedSnapshot()
	snap.Status = state.PipelineRunning
	d.NotifyPipeline(snap)

	assert.Equal(t, 0, rec.count())
}

func TestNotifyStage(t *testing.T) {
	rec := &webhookRecorder{}
	d := newDispatcherForTest(t, rec)
	snap := failedSnapshot()

	d.NotifyStage(snap, "test")
	require.Equal(t, 1, rec.count())
	assert.Contains(t, rec.payloads[0].Text, "test stage failed (Retry 3).")
	assert.Empty(t, rec.payloads[0].Blocks)

	// skipped stages, unknown stages and suppressed flags produce nothing
	d.NotifyStage(snap, "build")
	d.NotifyStage(snap, "nonesuch")
	snap.Stages["lint"] = state.StageSnapshot{Status: state.StageSuccess, NotifyOnSuccess: false}
	d.NotifyStage(snap, "lint")
	assert.Equal(t, 1, rec.count())
}

func TestPostRetriesTransientFailure(t *testing.T) {
	rec := &webhookRecorder{failures: 2}
	d := newDispatcherForTest(t, rec)

	d.NotifyStage(failedSnapshot(), "test")
	assert.Equal(t, 1, rec.count())
}

func TestEmptyWebhookURLSkips(t *testing.T) {
	d := NewDispatcher(Conf{})
	// must not panic or block
	d.NotifyPipeline(failedSnapshot())
	d.NotifyStage(failedSnapshot(), "test")
}
