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
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/go-conveyor/conveyor/internal/orchestrator/state"
	"github.com/go-conveyor/conveyor/pkg/httpx"
)

// PipelineReader exposes read access to pipeline run snapshots.
type PipelineReader interface {
	GetPipeline(pipelineID string) (state.Snapshot, error)
	ListPipelines() []state.Snapshot
}

// PipelineHandler serves pipeline status queries.
type PipelineHandler struct {
	reader PipelineReader
}

// NewPipelineHandler creates a PipelineHandler.
func NewPipelineHandler(reader PipelineReader) *PipelineHandler {
	return &PipelineHandler{reader: reader}
}

// Get handles GET /pipeline/:id.
func (h *PipelineHandler) Get(c *gin.Context) {
	snap, err := h.reader.GetPipeline(c.Param("id"))
	if err != nil {
		if errors.Is(err, state.ErrUnknownPipeline) {
			httpx.WithRepErrMsg(c, httpx.NotFound.Code, httpx.NotFound.Msg, c.Request.URL.Path)
			return
		}
		httpx.WithRepErrMsg(c, httpx.InternalError.Code, httpx.InternalError.Msg, c.Request.URL.Path)
		return
	}
	httpx.WithRepJSON(c, snap)
}

// List handles GET /pipelines.
func (h *PipelineHandler) List(c *gin.Context) {
	httpx.WithRepJSON(c, gin.H{"pipelines": h.reader.ListPipelines()})
}
