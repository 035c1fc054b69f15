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

// Package handler implements the orchestrator API endpoints.
package handler

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/go-conveyor/conveyor/pkg/httpx"
	"github.com/go-conveyor/conveyor/pkg/log"
)

// DevelopmentSecret disables signature verification when configured,
// with a warning on every request.
const DevelopmentSecret = "development_secret_only"

// PipelineCreator starts a pipeline run for a repository and branch.
type PipelineCreator interface {
	CreatePipeline(repo, branch string) (string, error)
}

// WebhookHandler receives repository push events and triggers pipelines.
type WebhookHandler struct {
	secret  string
	creator PipelineCreator
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(secret string, creator PipelineCreator) *WebhookHandler {
	return &WebhookHandler{secret: secret, creator: creator}
}

// pushPayload covers the fields used from push and pull_request events.
type pushPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	PullRequest struct {
		Head struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
}

// Handle processes POST /webhook.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httpx.WithRepErrMsg(c, httpx.BadRequest.Code, httpx.BadRequest.Msg, c.Request.URL.Path)
		return
	}

	if !h.verifySignature(body, c.GetHeader("X-Hub-Signature")) {
		log.Warnf("rejected webhook with invalid signature from %s", c.ClientIP())
		httpx.WithRepErrMsg(c, httpx.InvalidSignature.Code, httpx.InvalidSignature.Msg, c.Request.URL.Path)
		return
	}

	eventType := c.GetHeader("X-GitHub-Event")
	if eventType == "" {
		eventType = "push"
	}
	if eventType != "push" && eventType != "pull_request" {
		log.Infof("ignoring webhook event type %s", eventType)
		httpx.WithRepMsg(c, httpx.EventIgnored.Code, httpx.EventIgnored.Msg)
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "invalid payload format", c.Request.URL.Path)
		return
	}

	repo := payload.Repository.FullName
	if repo == "" {
		httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "missing repository information", c.Request.URL.Path)
		return
	}

	branch := "main"
	switch eventType {
	case "push":
		if payload.Ref != "" {
			branch = strings.TrimPrefix(payload.Ref, "refs/heads/")
		}
	case "pull_request":
		if payload.PullRequest.Head.Ref != "" {
			branch = payload.PullRequest.Head.Ref
		}
	}

	pipelineID, err := h.creator.CreatePipeline(repo, branch)
	if err != nil {
		log.Errorf("failed to create pipeline for %s@%s: %v", repo, branch, err)
		httpx.WithRepErrMsg(c, httpx.InternalError.Code, httpx.InternalError.Msg, c.Request.URL.Path)
		return
	}

	httpx.WithRepJSON(c, gin.H{
		"pipeline_id": pipelineID,
		"repo":        repo,
		"branch":      branch,
	})
}

// verifySignature checks the HMAC-SHA1 X-Hub-Signature header against
// the raw body. Verification is skipped when the secret is empty or the
// development default.
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if h.secret == "" || h.secret == DevelopmentSecret {
		log.Warn("webhook signature verification disabled, configure a secret in production")
		return true
	}
	if signature == "" {
		return false
	}

	received := signature
	if i := strings.IndexByte(signature, '='); i >= 0 {
		received = signature[i+1:]
	}

	mac := hmac.New(sha1.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(received))
}
