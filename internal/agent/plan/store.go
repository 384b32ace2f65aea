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

package plan

import (
	"context"
	"os"
	"sync"

	xerrors "agent-platform/pkg/errors"
)

// Store 计划存储接口。Read 返回当前外部表示解析出的计划。
type Store interface {
	Read(ctx context.Context) (*Plan, error)
	Write(ctx context.Context, p *Plan) error
}

// FileStore markdown 清单文件实现；文件缺失视为空计划
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore 创建文件计划存储
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidArg, "plan: empty path")
	}
	return &FileStore{path: path}, nil
}

// Read 实现 Store.Read：每次重读文件
func (s *FileStore) Read(ctx context.Context) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Plan{}, nil
		}
		return nil, xerrors.Wrap(err, "plan: read file")
	}
	return Parse(string(data)), nil
}

// Write 实现 Store.Write：全量覆盖文件
func (s *FileStore) Write(ctx context.Context, p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, []byte(Render(p)), 0644); err != nil {
		return xerrors.Wrap(err, "plan: write file")
	}
	return nil
}

// MemoryStore 内存实现，测试用
type MemoryStore struct {
	mu   sync.Mutex
	plan Plan
}

// NewMemoryStore 创建内存计划存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Read 实现 Store.Read
func (s *MemoryStore) Read(ctx context.Context) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Plan{Steps: make([]Step, len(s.plan.Steps))}
	copy(out.Steps, s.plan.Steps)
	return &out, nil
}

// Write 实现 Store.Write
func (s *MemoryStore) Write(ctx context.Context, p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = Plan{Steps: make([]Step, len(p.Steps))}
	copy(s.plan.Steps, p.Steps)
	return nil
}
