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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("AGENT_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(120 * time.Second).
		SetHeader("Content-Type", "application/json")
}

func getHealth() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/health: %s", resp.String())
	}
	return out, nil
}

func listTools() ([]map[string]interface{}, error) {
	var out struct {
		Tools []map[string]interface{} `json:"tools"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/tools")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/tools: %s", resp.String())
	}
	return out.Tools, nil
}

// askResult POST /api/agents/:name 的响应
type askResult struct {
	Success  bool                   `json:"success"`
	Result   string                 `json:"result"`
	Metadata map[string]interface{} `json:"metadata"`
	Error    map[string]interface{} `json:"error"`
}

func askAgent(agent, query, sessionID string) (*askResult, error) {
	body := map[string]interface{}{"query": query}
	if sessionID != "" {
		body["options"] = map[string]interface{}{"session_id": sessionID}
	}
	var out askResult
	resp, err := newClient().R().
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/api/agents/" + agent)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK && out.Error == nil {
		return nil, fmt.Errorf("POST /api/agents/%s: %s", agent, resp.String())
	}
	return &out, nil
}

func getSession(sessionID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/sessions/" + sessionID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/sessions/%s: %s", sessionID, resp.String())
	}
	return out, nil
}

func getSessionTrace(sessionID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/sessions/" + sessionID + "/trace")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET trace: %s", resp.String())
	}
	return out, nil
}

// callTool JSON-RPC tools/call，直接调度工具（不经过 LLM）
func callTool(name string, args map[string]interface{}) (interface{}, error) {
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{"name": name, "arguments": args},
	}
	var out struct {
		Result interface{}            `json:"result"`
		Error  map[string]interface{} `json:"error"`
	}
	resp, err := newClient().R().
		SetBody(req).
		SetResult(&out).
		Post("/api/rpc")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/rpc: %s", resp.String())
	}
	if out.Error != nil {
		return nil, fmt.Errorf("tools/call %s: %v", name, out.Error["message"])
	}
	return out.Result, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
