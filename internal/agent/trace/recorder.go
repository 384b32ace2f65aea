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

package trace

import (
	"context"
	"sync"
	"time"
)

// Recorder 会话级步进记录器。未启用步进门时自由运行；
// 启用后每步开始前阻塞等待 Continue()，与终端无关（通道令牌驱动）。
type Recorder struct {
	mu        sync.Mutex
	sessionID string
	agent     string
	records   []StepRecord
	final     string
	createdAt time.Time
	gate      chan struct{}    // nil = 自由运行
	sink      func(StepRecord) // 可选：每条记录的旁路观察者（SSE 等）
}

// NewRecorder 创建记录器
func NewRecorder(sessionID string) *Recorder {
	return &Recorder{sessionID: sessionID, createdAt: time.Now()}
}

// SetAgent 记录所属 agent 名
func (r *Recorder) SetAgent(agent string) {
	r.mu.Lock()
	r.agent = agent
	r.mu.Unlock()
}

// SetSink 设置旁路观察者；每次 Record 后同步调用
func (r *Recorder) SetSink(fn func(StepRecord)) {
	r.mu.Lock()
	r.sink = fn
	r.mu.Unlock()
}

// EnableStepping 启用步进门；之后每步开始前 BeforeStep 阻塞，直到 Continue
func (r *Recorder) EnableStepping() {
	r.mu.Lock()
	if r.gate == nil {
		r.gate = make(chan struct{})
	}
	r.mu.Unlock()
}

// Continue 放行一步（发送一个令牌）；未启用步进时 no-op
func (r *Recorder) Continue() {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
}

// BeforeStep 在每个 LLM 步之前调用；步进模式下阻塞等待令牌或 ctx 取消
func (r *Recorder) BeforeStep(ctx context.Context) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Record 追加一条步记录
func (r *Recorder) Record(rec StepRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	r.mu.Lock()
	r.records = append(r.records, rec)
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink(rec)
	}
}

// SetFinal 记录会话终态
func (r *Recorder) SetFinal(state string) {
	r.mu.Lock()
	r.final = state
	r.mu.Unlock()
}

// Len 当前记录数
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Snapshot 返回当前 trace 的一致副本
func (r *Recorder) Snapshot() Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]StepRecord, len(r.records))
	copy(records, r.records)
	return Trace{
		SessionID: r.sessionID,
		Agent:     r.agent,
		Final:     r.final,
		Records:   records,
		CreatedAt: r.createdAt,
	}
}

// Serialize 序列化当前快照
func (r *Recorder) Serialize() ([]byte, error) {
	return r.Snapshot().Serialize()
}
