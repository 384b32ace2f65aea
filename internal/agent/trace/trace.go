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

// Package trace 按步记录编排循环的执行：每个 LLM 步一条记录，只追加。
// 记录器是纯观察者，不改变执行语义；序列化的 trace 足以回放状态序列。
package trace

import (
	"encoding/json"
	"time"

	"agent-platform/internal/agent/tools"
	"agent-platform/internal/model/llm"
	xerrors "agent-platform/pkg/errors"
)

// StepRecord 一个 LLM 步的记录
type StepRecord struct {
	Step        int            `json:"step"`
	State       string         `json:"state"`
	Response    string         `json:"response,omitempty"`
	ToolCalls   []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolResults []tools.Result `json:"tool_results,omitempty"`
	Error       string         `json:"error,omitempty"`
	ElapsedMS   int64          `json:"elapsed_ms"`
	At          time.Time      `json:"at"`
}

// Trace 一个会话的完整步进记录
type Trace struct {
	SessionID string       `json:"session_id"`
	Agent     string       `json:"agent,omitempty"`
	Final     string       `json:"final_state,omitempty"`
	Records   []StepRecord `json:"records"`
	CreatedAt time.Time    `json:"created_at"`
}

// StateSequence 返回按步的状态序列（回放对比用）
func (t Trace) StateSequence() []string {
	out := make([]string, 0, len(t.Records))
	for _, r := range t.Records {
		out = append(out, r.State)
	}
	return out
}

// Serialize 序列化为 JSON
func (t Trace) Serialize() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, xerrors.Wrap(err, "trace: serialize")
	}
	return data, nil
}

// Parse 从 Serialize 的输出恢复 Trace
func Parse(data []byte) (*Trace, error) {
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, xerrors.Wrap(err, "trace: parse")
	}
	return &t, nil
}
