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

	xerrors "agent-platform/pkg/errors"
)

// Store 离线分析用的 trace 存储
type Store interface {
	// Save 保存（或覆盖）一个会话的 trace
	Save(ctx context.Context, t Trace) error
	// Load 按会话 ID 读取；不存在返回 ErrNotFound
	Load(ctx context.Context, sessionID string) (*Trace, error)
	// ListSessions 返回已存 trace 的会话 ID 列表
	ListSessions(ctx context.Context) ([]string, error)
}

// MemoryStore 内存实现
type MemoryStore struct {
	mu     sync.RWMutex
	traces map[string]Trace
}

// NewMemoryStore 创建内存 trace 存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traces: make(map[string]Trace)}
}

// Save 实现 Store.Save
func (s *MemoryStore) Save(ctx context.Context, t Trace) error {
	if t.SessionID == "" {
		return xerrors.Wrap(xerrors.ErrInvalidArg, "trace: empty session id")
	}
	s.mu.Lock()
	s.traces[t.SessionID] = t
	s.mu.Unlock()
	return nil
}

// Load 实现 Store.Load
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[sessionID]
	if !ok {
		return nil, xerrors.Wrapf(xerrors.ErrNotFound, "trace: session %s", sessionID)
	}
	out := t
	out.Records = make([]StepRecord, len(t.Records))
	copy(out.Records, t.Records)
	return &out, nil
}

// ListSessions 实现 Store.ListSessions
func (s *MemoryStore) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.traces))
	for id := range s.traces {
		ids = append(ids, id)
	}
	return ids, nil
}
