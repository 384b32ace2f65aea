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

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"agent-platform/internal/agent/orchestrator"
	"agent-platform/internal/agent/tools"
	"agent-platform/internal/model/llm"
)

// JSON-RPC 2.0 标准错误码
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func rpcOK(id json.RawMessage, result interface{}) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcFail(id json.RawMessage, code int, message string) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

// JSONRPC JSON-RPC 2.0 入口。支持 initialize / tools/list / tools/call；
// tools/call 直接调度工具，不经过 LLM，result 是工具的原始载荷。
// POST /api/rpc 与 POST /
func (h *Handler) JSONRPC(c context.Context, ctx *app.RequestContext) {
	var req rpcRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusOK, rpcFail(nil, rpcParseError, "parse error: "+err.Error()))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		ctx.JSON(consts.StatusOK, rpcFail(req.ID, rpcInvalidRequest, "invalid request"))
		return
	}

	resp := h.dispatchRPC(c, req)

	// 通知（无 id）不返回响应体
	if len(req.ID) == 0 || string(req.ID) == "null" {
		ctx.SetStatusCode(consts.StatusNoContent)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h *Handler) dispatchRPC(c context.Context, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]interface{}{
			"protocol_version": "2.0",
			"server_info": map[string]interface{}{
				"name":    "agent-platform",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{"list": true, "call": true},
			},
		})

	case "tools/list":
		descs := []tools.Descriptor{}
		if h.registry != nil {
			descs = h.registry.Descriptors()
		}
		return rpcOK(req.ID, map[string]interface{}{"tools": descs})

	case "tools/call":
		return h.rpcToolsCall(c, req)

	default:
		return rpcFail(req.ID, rpcMethodNotFound, "method not found: "+req.Method)
	}
}

type rpcToolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (h *Handler) rpcToolsCall(c context.Context, req rpcRequest) rpcResponse {
	var params rpcToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcFail(req.ID, rpcInvalidParams, "invalid params: "+err.Error())
	}
	if params.Name == "" {
		return rpcFail(req.ID, rpcInvalidParams, "tool name is required")
	}
	if h.registry == nil {
		return rpcFail(req.ID, rpcServerError, "tool registry is not configured")
	}
	if _, err := h.registry.Resolve(params.Name); err != nil {
		return rpcFail(req.ID, rpcInvalidParams, "unknown tool: "+params.Name)
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	call := llm.ToolCall{ID: "rpc-" + params.Name, Name: params.Name, Arguments: args}
	res := tools.Dispatch(c, h.registry, call, orchestrator.DefaultToolTimeout)
	if res.Status == tools.StatusError {
		return rpcFail(req.ID, rpcServerError, res.Error)
	}
	return rpcOK(req.ID, res.Payload)
}
