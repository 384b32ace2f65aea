// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http 协议桥：同一个执行引擎暴露为 REST、JSON-RPC 2.0 与 SSE 三种面。
// 协议层只做编解码与路由，不包含执行语义。
package http

import (
	"bytes"
	"context"
	stderrors "errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"agent-platform/internal/agent/orchestrator"
	"agent-platform/internal/agent/tools"
	"agent-platform/internal/agent/trace"
	"agent-platform/internal/runtime/conversation"
	xerrors "agent-platform/pkg/errors"
	"agent-platform/pkg/log"
	"agent-platform/pkg/metrics"
)

// 错误信封的 type 字段取值
const (
	errTypeInvalidRequest = "invalid_request"
	errTypeNotFound       = "model_or_tool_not_found"
	errTypeAgent          = "agent_error"
	errTypeInternal       = "internal_error"
)

// Handler HTTP 处理器
type Handler struct {
	agents     map[string]*orchestrator.Orchestrator
	registry   *tools.Registry
	convStore  conversation.Store
	traceStore trace.Store
	logger     *log.Logger
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(registry *tools.Registry, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{
		agents:   make(map[string]*orchestrator.Orchestrator),
		registry: registry,
		logger:   logger,
	}
}

// SetAgent 挂载一个命名 agent
func (h *Handler) SetAgent(name string, o *orchestrator.Orchestrator) {
	h.agents[name] = o
}

// SetConversationStore 挂载会话存储（多轮会话恢复）
func (h *Handler) SetConversationStore(s conversation.Store) {
	h.convStore = s
}

// SetTraceStore 挂载 trace 存储（离线回放）
func (h *Handler) SetTraceStore(s trace.Store) {
	h.traceStore = s
}

// writeError 统一错误信封：{"error": {"message", "type", "code"}}
func writeError(c *app.RequestContext, status int, errType, message string) {
	c.JSON(status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
			"code":    status,
		},
	})
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	toolsCount := 0
	if h.registry != nil {
		toolsCount = h.registry.Len()
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":       "ok",
		"agents_count": len(h.agents),
		"tools_count":  toolsCount,
		"timestamp":    time.Now().Unix(),
	})
}

// ListTools 列出注册的工具（名称、描述、参数 schema）
// GET /api/tools
func (h *Handler) ListTools(c context.Context, ctx *app.RequestContext) {
	descs := []tools.Descriptor{}
	if h.registry != nil {
		descs = h.registry.Descriptors()
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"tools": descs,
		"total": len(descs),
	})
}

// processRequest POST /api/agents/:name 请求体
type processRequest struct {
	Query   string `json:"query"`
	Options struct {
		SessionID string `json:"session_id"`
		MaxSteps  *int   `json:"max_steps"`
	} `json:"options"`
}

// ProcessAgent 执行一次查询
// POST /api/agents/:name
func (h *Handler) ProcessAgent(c context.Context, ctx *app.RequestContext) {
	name := ctx.Param("name")
	agent, ok := h.agents[name]
	if !ok {
		writeError(ctx, consts.StatusNotFound, errTypeNotFound, "agent not found: "+name)
		return
	}

	var req processRequest
	if err := ctx.BindJSON(&req); err != nil {
		writeError(ctx, consts.StatusBadRequest, errTypeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(ctx, consts.StatusBadRequest, errTypeInvalidRequest, "query is required")
		return
	}

	opts := []orchestrator.ProcessOption{orchestrator.WithAgentName(name)}
	if req.Options.SessionID != "" {
		opts = append(opts, orchestrator.WithSessionID(req.Options.SessionID))
		if h.convStore != nil {
			prev, err := h.convStore.Load(c, req.Options.SessionID)
			switch {
			case err == nil:
				opts = append(opts, orchestrator.WithHistory(prev.Entries()))
			case stderrors.Is(err, xerrors.ErrNotFound):
				// 新会话
			default:
				h.logger.Warn("加载会话失败", "session_id", req.Options.SessionID, "error", err)
			}
		}
	}
	if req.Options.MaxSteps != nil {
		if *req.Options.MaxSteps < 0 {
			writeError(ctx, consts.StatusBadRequest, errTypeInvalidRequest, "max_steps must be >= 0")
			return
		}
		opts = append(opts, orchestrator.WithMaxStepsOverride(*req.Options.MaxSteps))
	}

	result, err := agent.Process(c, req.Query, opts...)
	if result == nil {
		status := consts.StatusInternalServerError
		errType := errTypeInternal
		if stderrors.Is(err, xerrors.ErrInvalidArg) {
			status = consts.StatusBadRequest
			errType = errTypeInvalidRequest
		}
		writeError(ctx, status, errType, err.Error())
		return
	}

	h.persist(c, result)

	meta := map[string]interface{}{
		"session_id": result.SessionID,
		"state":      result.State.String(),
		"steps":      result.Steps,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	}
	if err != nil {
		h.logger.Error("agent 执行失败", "agent", name, "session_id", result.SessionID, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]interface{}{
			"error": map[string]interface{}{
				"message": result.FailReason,
				"type":    errTypeAgent,
				"code":    consts.StatusInternalServerError,
			},
			"metadata": meta,
		})
		return
	}

	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"success":  true,
		"result":   result.Answer,
		"metadata": meta,
	})
}

// persist 保存会话记录与 trace；存储故障不影响响应
func (h *Handler) persist(c context.Context, result *orchestrator.Result) {
	if h.convStore != nil {
		if err := h.convStore.Save(c, result.SessionID, conversation.NewLogFromEntries(result.Conversation)); err != nil {
			h.logger.Warn("保存会话失败", "session_id", result.SessionID, "error", err)
		}
	}
	if h.traceStore != nil {
		if err := h.traceStore.Save(c, result.Trace); err != nil {
			h.logger.Warn("保存 trace 失败", "session_id", result.SessionID, "error", err)
		}
	}
}

// GetSession 读取会话记录
// GET /api/sessions/:id
func (h *Handler) GetSession(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	if h.convStore == nil {
		writeError(ctx, consts.StatusNotFound, errTypeNotFound, "conversation store is not configured")
		return
	}
	logEntries, err := h.convStore.Load(c, id)
	if err != nil {
		if stderrors.Is(err, xerrors.ErrNotFound) {
			writeError(ctx, consts.StatusNotFound, errTypeNotFound, "session not found: "+id)
			return
		}
		writeError(ctx, consts.StatusInternalServerError, errTypeInternal, err.Error())
		return
	}
	entries := logEntries.Entries()
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"session_id": id,
		"entries":    entries,
		"total":      len(entries),
	})
}

// GetSessionTrace 读取会话的按步 trace
// GET /api/sessions/:id/trace
func (h *Handler) GetSessionTrace(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	if h.traceStore == nil {
		writeError(ctx, consts.StatusNotFound, errTypeNotFound, "trace store is not configured")
		return
	}
	t, err := h.traceStore.Load(c, id)
	if err != nil {
		if stderrors.Is(err, xerrors.ErrNotFound) {
			writeError(ctx, consts.StatusNotFound, errTypeNotFound, "trace not found: "+id)
			return
		}
		writeError(ctx, consts.StatusInternalServerError, errTypeInternal, err.Error())
		return
	}
	ctx.JSON(consts.StatusOK, t)
}

// SystemMetrics Prometheus 文本格式指标
// GET /api/system/metrics
func (h *Handler) SystemMetrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		writeError(ctx, consts.StatusInternalServerError, errTypeInternal, err.Error())
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
