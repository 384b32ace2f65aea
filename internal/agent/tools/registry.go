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

package tools

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	xerrors "agent-platform/pkg/errors"
)

// Registry Agent 可发现的工具注册表。显式实例，不使用进程级全局表。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry 创建新 Registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register 注册工具。同名且描述与 Schema 完全一致的重复注册是幂等 no-op；
// 同名但定义冲突返回 ErrDuplicateTool，需用 Replace 显式覆盖。
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return xerrors.Wrap(xerrors.ErrInvalidArg, "tools: nil tool or empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tools[t.Name()]
	if ok {
		if existing.Description() == t.Description() && reflect.DeepEqual(existing.Schema(), t.Schema()) {
			return nil
		}
		return xerrors.Wrapf(xerrors.ErrDuplicateTool, "tools: %s", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Replace 注册或覆盖工具
func (r *Registry) Replace(t Tool) error {
	if t == nil || t.Name() == "" {
		return xerrors.Wrap(xerrors.ErrInvalidArg, "tools: nil tool or empty name")
	}
	r.mu.Lock()
	r.tools[t.Name()] = t
	r.mu.Unlock()
	return nil
}

// Resolve 按名称解析工具；未注册返回 ErrUnknownTool
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, xerrors.Wrapf(xerrors.ErrUnknownTool, "tools: %s", name)
	}
	return t, nil
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List 返回所有已注册工具，按名称排序
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Len 已注册工具数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clear 清空注册表（测试隔离用）
func (r *Registry) Clear() {
	r.mu.Lock()
	r.tools = make(map[string]Tool)
	r.mu.Unlock()
}

// Descriptors 返回所有工具的对外描述，按名称排序
func (r *Registry) Descriptors() []Descriptor {
	list := r.List()
	out := make([]Descriptor, 0, len(list))
	for _, t := range list {
		out = append(out, Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return out
}

// ValidateArgs 按工具的 JSON Schema 校验参数；失败返回 ErrInvalidArg
func (r *Registry) ValidateArgs(name string, args map[string]any) error {
	t, err := r.Resolve(name)
	if err != nil {
		return err
	}
	schema := t.Schema()
	if schema == nil {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return xerrors.Wrapf(xerrors.ErrInvalidArg, "tools: %s schema", name)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return xerrors.Wrapf(xerrors.ErrInvalidArg, "tools: %s: %s", name, strings.Join(msgs, "; "))
	}
	return nil
}

// ObjectSchema 构造 object 类型的 JSON Schema 帮助函数
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringArg 从 args 取 string 参数
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", xerrors.Wrapf(xerrors.ErrInvalidArg, "missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", xerrors.Wrapf(xerrors.ErrInvalidArg, "argument %q: expected string, got %T", key, v)
	}
	return s, nil
}

// NumberArg 从 args 取数值参数（JSON 数字统一为 float64）
func NumberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, xerrors.Wrapf(xerrors.ErrInvalidArg, "missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, xerrors.Wrapf(xerrors.ErrInvalidArg, "argument %q: expected number, got %T", key, v)
	}
}
