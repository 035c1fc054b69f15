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

package handler

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-conveyor/conveyor/internal/orchestrator/state"
	"github.com/go-conveyor/conveyor/pkg/httpx"
)

type fakeCreator struct {
	repo   string
	branch string
	err    error
}

func (f *fakeCreator) CreatePipeline(repo, branch string) (string, error) {
	f.repo = repo
	f.branch = branch
	if f.err != nil {
		return "", f.err
	}
	return "acme-api-main-20250101120000-x1", nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandler, body string, headers map[string]string) (*httptest.ResponseRecorder, httpx.Response) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var rep httpx.Response
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	return w, rep
}

const pushBody = `{"ref":"refs/heads/feature/login","repository":{"full_name":"acme/api"}}`

func TestWebhookPushTriggersPipeline(t *testing.T) {
	creator := &fakeCreator{}
	h := NewWebhookHandler("topsecret", creator)

	_, rep := postWebhook(h, pushBody, map[string]string{
		"X-GitHub-Event":  "push",
		"X-Hub-Signature": sign("topsecret", []byte(pushBody)),
	})

	assert.Equal(t, httpx.Success.Code, rep.Code)
	assert.Equal(t, "acme/api", creator.repo)
	assert.Equal(t, "feature/login", creator.branch)

	detail, ok := rep.Detail.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acme-api-main-20250101120000-x1", detail["pipeline_id"])
}

func TestWebhookPullRequestBranch(t *testing.T) {
	creator := &fakeCreator{}
	h := NewWebhookHandler("", creator)

	body := `{"repository":{"full_name":"acme/api"},"pull_request":{"head":{"ref":"fix/timeout"}}}`
	_, rep := postWebhook(h, body, map[string]string{"X-GitHub-Event": "pull_request"})

	assert.Equal(t, httpx.Success.Code, rep.Code)
	assert.Equal(t, "fix/timeout", creator.branch)
}

func TestWebhookInvalidSignatureRejected(t *testing.T) {
	creator := &fakeCreator{}
	h := NewWebhookHandler("topsecret", creator)

	_, rep := postWebhook(h, pushBody, map[string]string{
		"X-Hub-Signature": sign("wrong", []byte(pushBody)),
	})
	assert.Equal(t, httpx.InvalidSignature.Code, rep.Code)
	assert.Empty(t, creator.repo)

	// missing signature with a real secret is also rejected
	_, rep = postWebhook(h, pushBody, nil)
	assert.Equal(t, httpx.InvalidSignature.Code, rep.Code)
}

func TestWebhookDevelopmentSecretSkipsVerification(t *testing.T) {
	creator := &fakeCreator{}
	h := NewWebhookHandler(DevelopmentSecret, creator)

	_, rep := postWebhook(h, pushBody, nil)
	assert.Equal(t, httpx.Success.Code, rep.Code)
}

func TestWebhookIgnoredEventType(t *testing.T) {
	creator := &fakeCreator{}
	h := NewWebhookHandler("", creator)

	_, rep := postWebhook(h, pushBody, map[string]string{"X-GitHub-Event": "issues"})
	assert.Equal(t, httpx.EventIgnored.Code, rep.Code)
	assert.Empty(t, creator.repo)
}

func TestWebhookBadPayload(t *testing.T) {
	creator := &fakeCreator{}
	h := NewWebhookHandler("", creator)

	_, rep := postWebhook(h, "not json", nil)
	assert.Equal(t, httpx.BadRequest.Code, rep.Code)

	_, rep = postWebhook(h, `{"ref":"refs/heads/main"}`, nil)
	assert.Equal(t, httpx.BadRequest.Code, rep.Code)
}

func TestWebhookCreateFailure(t *testing.T) {
	creator := &fakeCreator{err: errors.New("no pipeline definition")}
	h := NewWebhookHandler("", creator)

	_, rep := postWebhook(h, pushBody, nil)
	assert.Equal(t, httpx.InternalError.Code, rep.Code)
}

type fakeReader struct {
	snaps map[string]state.Snapshot
}

func (f *fakeReader) GetPipeline(id string) (state.Snapshot, error) {
	snap, ok := f.snaps[id]
	if !ok {
		return state.Snapshot{}, state.ErrUnknownPipeline
	}
	return snap, nil
}

func (f *fakeReader) ListPipelines() []state.Snapshot {
	var out []state.Snapshot
	for _, s := range f.snaps {
		out = append(out, s)
	}
	return out
}

func TestPipelineGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := &fakeReader{snaps: map[string]state.Snapshot{
		"p1": {PipelineID: "p1", Status: state.PipelineRunning},
	}}
	h := NewPipelineHandler(reader)

	r := gin.New()
	r.GET("/pipeline/:id", h.Get)
	r.GET("/pipelines", h.List)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pipeline/p1", nil))
	var rep httpx.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, httpx.Success.Code, rep.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pipeline/ghost", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, httpx.NotFound.Code, rep.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pipelines", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, httpx.Success.Code, rep.Code)
}
