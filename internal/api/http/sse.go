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

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"agent-platform/internal/agent/orchestrator"
	"agent-platform/internal/agent/trace"
	"agent-platform/internal/runtime/conversation"
)

// chatMessage OpenAI 兼容消息
type chatMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	MaxSteps *int          `json:"max_steps,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletion struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatChoice           `json:"choices"`
	Usage   map[string]interface{} `json:"usage,omitempty"`
}

type chunkChoice struct {
	Index        int         `json:"index"`
	Delta        chatMessage `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type chatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

// ChatCompletions OpenAI 兼容入口；model 字段即 agent 名。
// stream=true 时以 SSE 按步推送执行进度，终止帧为 data: [DONE]。
// POST /v1/chat/completions
func (h *Handler) ChatCompletions(c context.Context, ctx *app.RequestContext) {
	var req chatCompletionRequest
	if err := ctx.BindJSON(&req); err != nil {
		writeError(ctx, consts.StatusBadRequest, errTypeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	agent, ok := h.agents[req.Model]
	if !ok {
		writeError(ctx, consts.StatusNotFound, errTypeNotFound, "model not found: "+req.Model)
		return
	}

	query, history := splitChatMessages(req.Messages)
	if query == "" {
		writeError(ctx, consts.StatusBadRequest, errTypeInvalidRequest, "messages must end with a user message")
		return
	}

	sessionID := "session-" + uuid.New().String()
	opts := []orchestrator.ProcessOption{
		orchestrator.WithAgentName(req.Model),
		orchestrator.WithSessionID(sessionID),
	}
	if len(history) > 0 {
		opts = append(opts, orchestrator.WithHistory(history))
	}
	if req.MaxSteps != nil && *req.MaxSteps >= 0 {
		opts = append(opts, orchestrator.WithMaxStepsOverride(*req.MaxSteps))
	}

	if !req.Stream {
		result, err := agent.Process(c, query, opts...)
		if result == nil {
			writeError(ctx, consts.StatusInternalServerError, errTypeInternal, err.Error())
			return
		}
		h.persist(c, result)
		if err != nil {
			writeError(ctx, consts.StatusInternalServerError, errTypeAgent, result.FailReason)
			return
		}
		ctx.JSON(consts.StatusOK, chatCompletion{
			ID:      sessionID,
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []chatChoice{{
				Message:      chatMessage{Role: "assistant", Content: result.Answer},
				FinishReason: finishReason(result.State),
			}},
			Usage: map[string]interface{}{"total_steps": result.Steps},
		})
		return
	}

	rec := trace.NewRecorder(sessionID)
	rec.SetAgent(req.Model)
	pr, pw := io.Pipe()
	rec.SetSink(func(r trace.StepRecord) {
		writeChunk(pw, sessionID, req.Model, chatMessage{Content: stepLine(r)}, nil)
	})
	opts = append(opts, orchestrator.WithRecorder(rec))

	// 客户端读流期间请求上下文仍需存活，与请求取消解耦
	runCtx := context.WithoutCancel(c)
	go func() {
		defer pw.Close()
		writeChunk(pw, sessionID, req.Model, chatMessage{Role: "assistant"}, nil)
		result, err := agent.Process(runCtx, query, opts...)
		if result == nil {
			writeChunk(pw, sessionID, req.Model, chatMessage{Content: "error: " + err.Error()}, strPtr("failed"))
		} else {
			h.persist(runCtx, result)
			if result.Answer != "" {
				writeChunk(pw, sessionID, req.Model, chatMessage{Content: result.Answer}, nil)
			}
			writeChunk(pw, sessionID, req.Model, chatMessage{}, strPtr(finishReason(result.State)))
		}
		fmt.Fprint(pw, "data: [DONE]\n\n")
	}()

	ctx.SetStatusCode(consts.StatusOK)
	ctx.SetContentType("text/event-stream; charset=utf-8")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.SetBodyStream(pr, -1)
}

// splitChatMessages 取最后一条 user 消息为本轮 query，其余作为历史
func splitChatMessages(msgs []chatMessage) (string, []conversation.Entry) {
	lastUser := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			lastUser = i
			break
		}
	}
	if lastUser < 0 {
		return "", nil
	}
	history := make([]conversation.Entry, 0, lastUser)
	for _, m := range msgs[:lastUser] {
		switch m.Role {
		case "user", "assistant", "system":
			history = append(history, conversation.Entry{Role: m.Role, Content: m.Content})
		}
	}
	return msgs[lastUser].Content, history
}

// stepLine 步事件的流式展示行
func stepLine(r trace.StepRecord) string {
	if len(r.ToolCalls) == 0 {
		return fmt.Sprintf("[step %d] %s\n", r.Step, r.State)
	}
	names := make([]string, 0, len(r.ToolCalls))
	for _, c := range r.ToolCalls {
		names = append(names, c.Name)
	}
	data, _ := json.Marshal(names)
	return fmt.Sprintf("[step %d] %s tools=%s\n", r.Step, r.State, data)
}

func finishReason(s orchestrator.State) string {
	switch s {
	case orchestrator.StateCompletion:
		return "stop"
	case orchestrator.StateCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

func strPtr(s string) *string { return &s }

// writeChunk 写一帧 SSE：data: <chat.completion.chunk JSON>\n\n
func writeChunk(w io.Writer, id, model string, delta chatMessage, finish *string) {
	chunk := chatChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
