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
	"time"

	"agent-platform/internal/runtime/conversation"
	xerrors "agent-platform/pkg/errors"
)

// State 会话状态机。转移单调：终态不可再变，不允许回退。
type State int

const (
	StatePlanning State = iota
	StateExecutingPlan
	StateCompletion
	StateFailed
	StateCancelled
)

// String 返回状态名（trace / API 使用）
func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateExecutingPlan:
		return "executing_plan"
	case StateCompletion:
		return "completion"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal 是否终态
func (s State) Terminal() bool {
	return s == StateCompletion || s == StateFailed || s == StateCancelled
}

// Session 一次查询的执行会话
type Session struct {
	ID           string
	State        State
	StepCount    int
	MaxSteps     int
	Conversation *conversation.Log
	CreatedAt    time.Time
	FailReason   string
}

// transition 执行一次状态转移；违反单调性返回错误
func (s *Session) transition(next State) error {
	if s.State == next {
		return nil
	}
	if s.State.Terminal() {
		return xerrors.Wrapf(xerrors.ErrInvalidArg, "orchestrator: transition from terminal %s", s.State)
	}
	if next == StatePlanning {
		return xerrors.Wrap(xerrors.ErrInvalidArg, "orchestrator: transition back to planning")
	}
	s.State = next
	return nil
}
