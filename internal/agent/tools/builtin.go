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
	"context"
	"time"

	"agent-platform/internal/agent/plan"
)

// RegisterBuiltin 注册内置工具。核心引擎不含领域工具；
// 这些只在装配层（composition root）挂载，便于联调与示例。
func RegisterBuiltin(reg *Registry, planStore plan.Store) error {
	builtins := []Tool{
		NewEchoTool(),
		NewAddTool(),
		NewNowTool(),
	}
	if planStore != nil {
		builtins = append(builtins, NewPlanUpdateTool(planStore))
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// NewEchoTool 原样返回参数
func NewEchoTool() Tool {
	return New("echo", "Echo the arguments back unchanged.",
		ObjectSchema(map[string]any{
			"msg": map[string]any{"type": "string", "description": "text to echo"},
		}, "msg"),
		func(ctx context.Context, args map[string]any) (any, error) {
			return args, nil
		})
}

// NewAddTool 两数相加
func NewAddTool() Tool {
	return New("add", "Add two numbers and return the sum.",
		ObjectSchema(map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		}, "a", "b"),
		func(ctx context.Context, args map[string]any) (any, error) {
			a, err := NumberArg(args, "a")
			if err != nil {
				return nil, err
			}
			b, err := NumberArg(args, "b")
			if err != nil {
				return nil, err
			}
			return map[string]any{"sum": a + b}, nil
		})
}

// NewNowTool 返回当前 UTC 时间
func NewNowTool() Tool {
	return New("now", "Return the current time in RFC3339 (UTC).",
		ObjectSchema(map[string]any{}),
		func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"now": time.Now().UTC().Format(time.RFC3339)}, nil
		})
}

// NewPlanUpdateTool 标记计划步骤状态；模型用它推进清单
func NewPlanUpdateTool(store plan.Store) Tool {
	return New("plan_update", "Mark a plan step as pending, in_progress, done or failed.",
		ObjectSchema(map[string]any{
			"step_id": map[string]any{"type": "string", "description": "plan step id, e.g. step-2"},
			"status": map[string]any{
				"type": "string",
				"enum": []any{"pending", "in_progress", "done", "failed"},
			},
		}, "step_id", "status"),
		func(ctx context.Context, args map[string]any) (any, error) {
			stepID, err := StringArg(args, "step_id")
			if err != nil {
				return nil, err
			}
			status, err := StringArg(args, "status")
			if err != nil {
				return nil, err
			}
			p, err := store.Read(ctx)
			if err != nil {
				return nil, err
			}
			if err := p.UpdateStep(stepID, plan.Status(status)); err != nil {
				return nil, err
			}
			if err := store.Write(ctx, p); err != nil {
				return nil, err
			}
			return map[string]any{"step_id": stepID, "status": status}, nil
		})
}
