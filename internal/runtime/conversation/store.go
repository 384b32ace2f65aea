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

package conversation

import (
	"context"
	"sync"

	xerrors "agent-platform/pkg/errors"
)

// Store 会话记录存储接口（多轮会话按 session_id 恢复）
type Store interface {
	// Load 按会话 ID 读取记录；不存在返回 pkg/errors.ErrNotFound
	Load(ctx context.Context, sessionID string) (*Log, error)
	// Save 全量保存会话记录
	Save(ctx context.Context, sessionID string, log *Log) error
	// Delete 删除会话记录
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore 内存实现，进程内多轮会话与测试用
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]Entry
}

// NewMemoryStore 创建内存会话存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]Entry)}
}

// Load 实现 Store.Load
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.logs[sessionID]
	if !ok {
		return nil, xerrors.Wrapf(xerrors.ErrNotFound, "conversation: session %s", sessionID)
	}
	return NewLogFromEntries(entries), nil
}

// Save 实现 Store.Save
func (s *MemoryStore) Save(ctx context.Context, sessionID string, log *Log) error {
	if sessionID == "" {
		return xerrors.Wrap(xerrors.ErrInvalidArg, "conversation: empty session id")
	}
	entries := log.Entries()
	s.mu.Lock()
	s.logs[sessionID] = entries
	s.mu.Unlock()
	return nil
}

// Delete 实现 Store.Delete
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.logs, sessionID)
	s.mu.Unlock()
	return nil
}
