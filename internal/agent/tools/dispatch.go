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
	"encoding/json"
	"fmt"
	"time"

	"agent-platform/internal/model/llm"
	xerrors "agent-platform/pkg/errors"
	"agent-platform/pkg/metrics"
	"agent-platform/pkg/tracing"
)

// Result 一次工具调用的结果。Status 为 error 时 Error 非空，Payload 为 nil。
// 解析失败、参数非法、执行失败、超时都以 error Result 返回，绝不 panic。
type Result struct {
	Call     llm.ToolCall  `json:"call"`
	Status   string        `json:"status"` // success | error
	Payload  any           `json:"payload,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// StatusSuccess / StatusError Result.Status 取值
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ContentJSON 将结果渲染为回写会话的 JSON 文本
func (r Result) ContentJSON() string {
	var body map[string]any
	if r.Status == StatusSuccess {
		body = map[string]any{"status": r.Status, "payload": r.Payload}
	} else {
		body = map[string]any{"status": r.Status, "error": r.Error}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","error":%q}`, err.Error())
	}
	return string(data)
}

// Dispatch 解析、校验并执行一次工具调用。timeout > 0 时施加硬超时：
// 到点后放弃执行中的 goroutine（尽力而为，无法强杀），结果记为 timeout 错误。
func Dispatch(ctx context.Context, reg *Registry, call llm.ToolCall, timeout time.Duration) Result {
	start := time.Now()
	res := Result{Call: call, Status: StatusError}

	finish := func(r Result) Result {
		r.Duration = time.Since(start)
		metrics.ToolDuration.WithLabelValues(call.Name, r.Status).Observe(r.Duration.Seconds())
		return r
	}

	tool, err := reg.Resolve(call.Name)
	if err != nil {
		res.Error = err.Error()
		return finish(res)
	}

	args, err := call.ArgumentsMap()
	if err != nil {
		res.Error = xerrors.Wrapf(xerrors.ErrInvalidArg, "tools: %s: malformed arguments: %v", call.Name, err).Error()
		return finish(res)
	}

	if err := reg.ValidateArgs(call.Name, args); err != nil {
		res.Error = err.Error()
		return finish(res)
	}

	ctx, span := tracing.StartToolSpan(ctx, call.Name)
	defer span.End()

	invokeCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		payload, err := tool.Invoke(invokeCtx, args)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			res.Error = xerrors.NewToolExecutionError(call.Name, out.err).Error()
			return finish(res)
		}
		res.Status = StatusSuccess
		res.Payload = out.payload
		return finish(res)
	case <-invokeCtx.Done():
		if timeout > 0 && invokeCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			res.Error = xerrors.Wrapf(xerrors.ErrToolTimeout, "tools: %s after %s", call.Name, timeout).Error()
		} else {
			res.Error = xerrors.NewToolExecutionError(call.Name, invokeCtx.Err()).Error()
		}
		return finish(res)
	}
}
