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

// Package router registers the orchestrator API routes.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/go-conveyor/conveyor/internal/orchestrator/engine"
	"github.com/go-conveyor/conveyor/internal/orchestrator/handler"
)

// Register wires the API endpoints onto the route group.
func Register(r *gin.RouterGroup, e *engine.Engine, webhookSecret string) {
	webhook := handler.NewWebhookHandler(webhookSecret, e)
	pipeline := handler.NewPipelineHandler(e)

	r.POST("/webhook", webhook.Handle)
	r.GET("/pipeline/:id", pipeline.Get)
	r.GET("/pipelines", pipeline.List)
}
