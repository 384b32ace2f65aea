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

package orchestrator

import (
	"fmt"
	"strings"

	"agent-platform/internal/agent/tools"
)

// buildSystemPrompt 组装系统提示：工具目录 + 当前计划。
// 计划文本来自外部表示，每个生成步前重读，外部编辑即时生效。
func buildSystemPrompt(descs []tools.Descriptor, planText string) string {
	var b strings.Builder
	b.WriteString("You are a task execution agent. Solve the user's request step by step.\n")
	b.WriteString("Call tools when you need them; answer directly once the task is done.\n")
	if len(descs) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, d := range descs {
			fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		}
	}
	if planText != "" {
		b.WriteString("\nCurrent plan:\n")
		b.WriteString(planText)
		b.WriteString("Use the plan_update tool to mark steps as you complete them.\n")
	}
	return b.String()
}
