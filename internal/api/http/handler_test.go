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
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"agent-platform/internal/agent/orchestrator"
	"agent-platform/internal/agent/tools"
	"agent-platform/internal/agent/trace"
	"agent-platform/internal/api/http/middleware"
	"agent-platform/internal/model/llm"
	"agent-platform/internal/runtime/conversation"
	"agent-platform/pkg/log"
)

// stubLLM 按脚本逐轮返回响应；脚本耗尽后重复最后一条
type stubLLM struct {
	mu        sync.Mutex
	responses []llm.Response
	calls     int
}

func (s *stubLLM) Chat(req llm.Request) (*llm.Response, error) {
	return s.ChatWithContext(context.Background(), req)
}

func (s *stubLLM) ChatWithContext(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[idx]
	return &r, nil
}

func (s *stubLLM) Model() string    { return "stub" }
func (s *stubLLM) Provider() string { return "stub" }
func (s *stubLLM) SetModel(string)  {}
func (s *stubLLM) SetAPIKey(string) {}

func buildTestServer(t *testing.T, responses ...llm.Response) (*server.Hertz, *Handler) {
	t.Helper()
	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltin(reg, nil); err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}
	if len(responses) == 0 {
		responses = []llm.Response{{Content: "stub answer"}}
	}
	handler := NewHandler(reg, log.Nop())
	handler.SetAgent("assistant", orchestrator.New(&stubLLM{responses: responses}, reg))
	handler.SetConversationStore(conversation.NewMemoryStore())
	handler.SetTraceStore(trace.NewMemoryStore())
	r := NewRouter(handler, middleware.NewMiddleware())
	return r.Build(":0"), handler
}

func performJSON(s *server.Hertz, method, path string, body []byte) *ut.ResponseRecorder {
	return ut.PerformRequest(s.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func TestHealthCheck(t *testing.T) {
	s, _ := buildTestServer(t)
	w := performJSON(s, "GET", "/api/health", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"status":"ok"`)) {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"tools_count":3`)) {
		t.Errorf("HealthCheck tools_count: %s", resp.Body())
	}
}

func TestListTools(t *testing.T) {
	s, _ := buildTestServer(t)
	w := performJSON(s, "GET", "/api/tools", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("ListTools status: got %d", resp.StatusCode())
	}
	for _, name := range []string{"add", "echo", "now"} {
		if !bytes.Contains(resp.Body(), []byte(`"name":"`+name+`"`)) {
			t.Errorf("ListTools missing %s: %s", name, resp.Body())
		}
	}
}

func TestProcessAgent_Success(t *testing.T) {
	s, _ := buildTestServer(t,
		llm.Response{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "add", Arguments: []byte(`{"a":2,"b":2}`)}}},
		llm.Response{Content: "the sum is 4"},
	)
	body := []byte(`{"query":"add 2 and 2"}`)
	w := performJSON(s, "POST", "/api/agents/assistant", body)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("ProcessAgent status: got %d body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"success":true`)) {
		t.Errorf("ProcessAgent body: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"state":"completion"`)) {
		t.Errorf("ProcessAgent metadata: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"steps":2`)) {
		t.Errorf("ProcessAgent steps: %s", resp.Body())
	}
}

func TestProcessAgent_UnknownAgent(t *testing.T) {
	s, _ := buildTestServer(t)
	body := []byte(`{"query":"hi"}`)
	w := performJSON(s, "POST", "/api/agents/nope", body)
	resp := w.Result()
	if resp.StatusCode() != 404 {
		t.Errorf("ProcessAgent unknown agent: status got %d, want 404", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("model_or_tool_not_found")) {
		t.Errorf("ProcessAgent unknown agent body: %s", resp.Body())
	}
}

func TestProcessAgent_EmptyQuery(t *testing.T) {
	s, _ := buildTestServer(t)
	body := []byte(`{"query":""}`)
	w := performJSON(s, "POST", "/api/agents/assistant", body)
	resp := w.Result()
	if resp.StatusCode() != 400 {
		t.Errorf("ProcessAgent empty query: status got %d, want 400", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("invalid_request")) {
		t.Errorf("ProcessAgent empty query body: %s", resp.Body())
	}
}

func TestProcessAgent_StepLimitReturnsAgentError(t *testing.T) {
	s, _ := buildTestServer(t)
	body := []byte(`{"query":"hi","options":{"max_steps":0}}`)
	w := performJSON(s, "POST", "/api/agents/assistant", body)
	resp := w.Result()
	if resp.StatusCode() != 500 {
		t.Fatalf("ProcessAgent step limit: status got %d, want 500", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("agent_error")) {
		t.Errorf("ProcessAgent step limit body: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"state":"failed"`)) {
		t.Errorf("ProcessAgent step limit metadata: %s", resp.Body())
	}
}

func TestProcessAgent_SessionResume(t *testing.T) {
	s, handler := buildTestServer(t, llm.Response{Content: "answer"})
	body := []byte(`{"query":"first","options":{"session_id":"session-multi"}}`)
	w := performJSON(s, "POST", "/api/agents/assistant", body)
	if w.Result().StatusCode() != 200 {
		t.Fatalf("first turn status: %d", w.Result().StatusCode())
	}

	body = []byte(`{"query":"second","options":{"session_id":"session-multi"}}`)
	w = performJSON(s, "POST", "/api/agents/assistant", body)
	if w.Result().StatusCode() != 200 {
		t.Fatalf("second turn status: %d", w.Result().StatusCode())
	}

	logEntries, err := handler.convStore.Load(context.Background(), "session-multi")
	if err != nil {
		t.Fatalf("Load session: %v", err)
	}
	// 两轮各 user+assistant
	if got := logEntries.Len(); got != 4 {
		t.Errorf("session entries: got %d, want 4", got)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s, _ := buildTestServer(t)
	w := performJSON(s, "GET", "/api/sessions/missing", nil)
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("GetSession missing: status got %d, want 404", got)
	}
}

func TestGetSessionTrace_RoundTrip(t *testing.T) {
	s, _ := buildTestServer(t, llm.Response{Content: "answer"})
	body := []byte(`{"query":"hello","options":{"session_id":"session-t1"}}`)
	w := performJSON(s, "POST", "/api/agents/assistant", body)
	if w.Result().StatusCode() != 200 {
		t.Fatalf("ProcessAgent status: %d", w.Result().StatusCode())
	}

	w = performJSON(s, "GET", "/api/sessions/session-t1/trace", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("GetSessionTrace status: %d body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"final_state":"completion"`)) {
		t.Errorf("GetSessionTrace body: %s", resp.Body())
	}
}

func TestSystemMetrics(t *testing.T) {
	s, _ := buildTestServer(t)
	w := performJSON(s, "GET", "/api/system/metrics", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("SystemMetrics status: %d", resp.StatusCode())
	}
}

func TestJSONRPC_ToolsCallEcho(t *testing.T) {
	s, _ := buildTestServer(t)
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"msg":"hi"}}}`)
	w := performJSON(s, "POST", "/api/rpc", body)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("tools/call status: %d", resp.StatusCode())
	}
	var out struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      int             `json:"id"`
		Result  map[string]any  `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		t.Fatalf("unmarshal response: %v body %s", err, resp.Body())
	}
	if out.JSONRPC != "2.0" || out.ID != 1 {
		t.Errorf("envelope: %s", resp.Body())
	}
	if len(out.Error) != 0 {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if out.Result["msg"] != "hi" {
		t.Errorf("result: %v", out.Result)
	}
}

func TestJSONRPC_RootPathAlias(t *testing.T) {
	s, _ := buildTestServer(t)
	body := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	w := performJSON(s, "POST", "/", body)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("root rpc status: %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"name":"echo"`)) {
		t.Errorf("tools/list body: %s", resp.Body())
	}
}

func TestJSONRPC_Initialize(t *testing.T) {
	s, _ := buildTestServer(t)
	body := []byte(`{"jsonrpc":"2.0","id":"init-1","method":"initialize"}`)
	w := performJSON(s, "POST", "/api/rpc", body)
	resp := w.Result()
	if !bytes.Contains(resp.Body(), []byte("protocol_version")) {
		t.Errorf("initialize body: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"id":"init-1"`)) {
		t.Errorf("initialize id echo: %s", resp.Body())
	}
}

func TestJSONRPC_Errors(t *testing.T) {
	s, _ := buildTestServer(t)

	// parse error
	w := performJSON(s, "POST", "/api/rpc", []byte(`{not json`))
	if !bytes.Contains(w.Result().Body(), []byte("-32700")) {
		t.Errorf("parse error body: %s", w.Result().Body())
	}

	// invalid request
	w = performJSON(s, "POST", "/api/rpc", []byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`))
	if !bytes.Contains(w.Result().Body(), []byte("-32600")) {
		t.Errorf("invalid request body: %s", w.Result().Body())
	}

	// method not found
	w = performJSON(s, "POST", "/api/rpc", []byte(`{"jsonrpc":"2.0","id":2,"method":"nope"}`))
	if !bytes.Contains(w.Result().Body(), []byte("-32601")) {
		t.Errorf("method not found body: %s", w.Result().Body())
	}

	// unknown tool -> invalid params
	w = performJSON(s, "POST", "/api/rpc", []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"nope"}}`))
	if !bytes.Contains(w.Result().Body(), []byte("-32602")) {
		t.Errorf("unknown tool body: %s", w.Result().Body())
	}

	// tool execution error -> server error
	w = performJSON(s, "POST", "/api/rpc", []byte(`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"add","arguments":{"a":"x"}}}`))
	if !bytes.Contains(w.Result().Body(), []byte("-32")) {
		t.Errorf("tool error body: %s", w.Result().Body())
	}
}

func TestChatCompletions_NonStream(t *testing.T) {
	s, _ := buildTestServer(t, llm.Response{Content: "hello there"})
	body := []byte(`{"model":"assistant","messages":[{"role":"user","content":"hi"}]}`)
	w := performJSON(s, "POST", "/v1/chat/completions", body)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("ChatCompletions status: %d body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"object":"chat.completion"`)) {
		t.Errorf("ChatCompletions body: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte("hello there")) {
		t.Errorf("ChatCompletions answer: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"finish_reason":"stop"`)) {
		t.Errorf("ChatCompletions finish_reason: %s", resp.Body())
	}
}

func TestChatCompletions_Stream(t *testing.T) {
	s, _ := buildTestServer(t,
		llm.Response{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "add", Arguments: []byte(`{"a":2,"b":3}`)}}},
		llm.Response{Content: "the sum is 5"},
	)
	body := []byte(`{"model":"assistant","messages":[{"role":"user","content":"add 2 and 3"}],"stream":true}`)
	w := performJSON(s, "POST", "/v1/chat/completions", body)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("stream status: %d body %s", resp.StatusCode(), resp.Body())
	}
	if ct := string(resp.Header.ContentType()); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("stream content-type: %s", ct)
	}

	raw := string(resp.Body())
	frames := strings.Split(strings.TrimRight(raw, "\n"), "\n\n")
	if len(frames) < 3 {
		t.Fatalf("stream frames: got %d, body %s", len(frames), raw)
	}
	if frames[len(frames)-1] != "data: [DONE]" {
		t.Errorf("stream terminator: %q", frames[len(frames)-1])
	}

	var sawAnswer, sawStop bool
	for _, f := range frames[:len(frames)-1] {
		payload, ok := strings.CutPrefix(f, "data: ")
		if !ok {
			t.Fatalf("frame missing data prefix: %q", f)
		}
		var chunk struct {
			Object  string `json:"object"`
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Fatalf("frame not JSON: %v payload %s", err, payload)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Errorf("frame object: %s", chunk.Object)
		}
		for _, c := range chunk.Choices {
			if strings.Contains(c.Delta.Content, "the sum is 5") {
				sawAnswer = true
			}
			if c.FinishReason != nil && *c.FinishReason == "stop" {
				sawStop = true
			}
		}
	}
	if !sawAnswer {
		t.Errorf("stream missing answer, body: %s", raw)
	}
	if !sawStop {
		t.Errorf("stream missing stop finish_reason, body: %s", raw)
	}
}

func TestChatCompletions_UnknownModel(t *testing.T) {
	s, _ := buildTestServer(t)
	body := []byte(`{"model":"nope","messages":[{"role":"user","content":"hi"}]}`)
	w := performJSON(s, "POST", "/v1/chat/completions", body)
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("ChatCompletions unknown model: status got %d, want 404", got)
	}
}
