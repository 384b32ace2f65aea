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

// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误。工具级错误（validation / execution / timeout / unknown tool）
// 是可恢复的：编排循环把它们写回会话让模型自纠；会话级错误
// （step limit / no progress / backend / cancelled）是终态。
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArg         = errors.New("invalid argument")
	ErrDuplicateTool      = errors.New("duplicate tool")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrToolTimeout        = errors.New("tool timeout")
	ErrStepLimitExceeded  = errors.New("step limit exceeded")
	ErrNoProgress         = errors.New("no progress")
	ErrBackendUnavailable = errors.New("llm backend unavailable")
)

// ToolExecutionError 工具执行失败；Recoverable 的错误会以 error ToolResult
// 回写会话，不终止会话。
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// NewToolExecutionError 包装一次工具调用的失败
func NewToolExecutionError(tool string, err error) *ToolExecutionError {
	return &ToolExecutionError{Tool: tool, Err: err}
}

// Recoverable 判断错误是否工具级（可回写会话继续）；终态错误返回 false
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrStepLimitExceeded),
		errors.Is(err, ErrNoProgress),
		errors.Is(err, ErrBackendUnavailable):
		return false
	}
	return true
}

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
