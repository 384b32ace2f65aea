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

// Package plan 维护有序的计划步骤列表。计划以外部文本产物（markdown 清单）
// 为准：每个生成步之前重新读取，外部编辑即时生效。
package plan

import (
	"fmt"
	"strings"

	xerrors "agent-platform/pkg/errors"
)

// Status 计划步骤状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Step 一个计划步骤；ID 按位置生成（step-1, step-2, ...）
type Step struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}

// Plan 有序步骤列表
type Plan struct {
	Steps []Step `json:"steps"`
}

// UpdateStep 按 ID 更新步骤状态；未找到返回 ErrNotFound
func (p *Plan) UpdateStep(id string, status Status) error {
	switch status {
	case StatusPending, StatusInProgress, StatusDone, StatusFailed:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidArg, "plan: status %q", status)
	}
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			p.Steps[i].Status = status
			return nil
		}
	}
	return xerrors.Wrapf(xerrors.ErrNotFound, "plan: step %s", id)
}

// statusMarker markdown 清单标记 <-> 状态
var statusMarker = map[Status]string{
	StatusPending:    " ",
	StatusInProgress: "~",
	StatusDone:       "x",
	StatusFailed:     "!",
}

var markerStatus = map[string]Status{
	" ": StatusPending,
	"~": StatusInProgress,
	"x": StatusDone,
	"X": StatusDone,
	"!": StatusFailed,
}

// Render 渲染为 markdown 清单
func Render(p *Plan) string {
	if p == nil || len(p.Steps) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range p.Steps {
		marker, ok := statusMarker[s.Status]
		if !ok {
			marker = " "
		}
		fmt.Fprintf(&b, "- [%s] %s\n", marker, s.Description)
	}
	return b.String()
}

// Parse 从 markdown 清单解析计划；非清单行忽略
func Parse(text string) *Plan {
	p := &Plan{}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 6 || !strings.HasPrefix(trimmed, "- [") || trimmed[4] != ']' {
			continue
		}
		status, ok := markerStatus[string(trimmed[3])]
		if !ok {
			continue
		}
		desc := strings.TrimSpace(trimmed[5:])
		p.Steps = append(p.Steps, Step{
			ID:          fmt.Sprintf("step-%d", len(p.Steps)+1),
			Description: desc,
			Status:      status,
		})
	}
	return p
}
