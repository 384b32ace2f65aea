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

// Package conversation 维护会话记录：只追加、写入后不可变，是回放的唯一事实来源。
package conversation

import (
	"sync"
	"time"

	"agent-platform/internal/model/llm"
)

// 会话角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Entry 一条会话记录；追加后不可变
type Entry struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`   // assistant 记录：请求的工具调用
	ToolName   string         `json:"tool_name,omitempty"`    // tool 记录：工具名
	ToolCallID string         `json:"tool_call_id,omitempty"` // tool 记录：对应调用 ID
}

// Log 只追加的会话记录；读取返回副本
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewLog 创建空会话记录
func NewLog() *Log {
	return &Log{}
}

// NewLogFromEntries 从既有记录恢复（用于多轮会话与回放）
func NewLogFromEntries(entries []Entry) *Log {
	l := &Log{entries: make([]Entry, len(entries))}
	copy(l.entries, entries)
	return l
}

// Append 追加一条记录；Timestamp 为零值时补当前时间
func (l *Log) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Entries 返回全部记录的副本
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len 当前记录数
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Messages 渲染为 LLM 消息列表
func (l *Log) Messages() []llm.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]llm.Message, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, llm.Message{
			Role:       e.Role,
			Content:    e.Content,
			Name:       e.ToolName,
			ToolCallID: e.ToolCallID,
			ToolCalls:  e.ToolCalls,
		})
	}
	return out
}
