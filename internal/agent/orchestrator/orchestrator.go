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

// Package orchestrator 实现有界步循环：LLM 生成与工具调度交替，
// 直到模型给出最终回答、步数耗尽、无进展或被取消。
// 会话记录是唯一事实来源；计划从外部表示每步重读。
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"agent-platform/internal/agent/plan"
	"agent-platform/internal/agent/tools"
	"agent-platform/internal/agent/trace"
	"agent-platform/internal/model/llm"
	"agent-platform/internal/runtime/conversation"
	xerrors "agent-platform/pkg/errors"
	"agent-platform/pkg/log"
	"agent-platform/pkg/metrics"
	"agent-platform/pkg/tracing"
)

// NoProgressLimit 连续相同失败工具调用（同名 + 规范化参数相同）的上限；
// 达到后会话以 no progress 终止。
const NoProgressLimit = 3

// 默认值
const (
	DefaultMaxSteps    = 8
	DefaultToolTimeout = 30 * time.Second
)

// Orchestrator 步循环编排器。一个实例可并发服务多个会话：
// 每次 Process 创建独立的会话状态，共享的只有 Client 与 Registry。
type Orchestrator struct {
	client      llm.Client
	registry    *tools.Registry
	planStore   plan.Store
	logger      *log.Logger
	maxSteps    int
	toolTimeout time.Duration
	temperature float64
	maxTokens   int
}

// Option 编排器可选配置
type Option func(*Orchestrator)

// WithMaxSteps 设置默认步数上限
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) { o.maxSteps = n }
}

// WithToolTimeout 设置单次工具调用硬超时
func WithToolTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.toolTimeout = d }
}

// WithPlanStore 挂载外部计划存储
func WithPlanStore(s plan.Store) Option {
	return func(o *Orchestrator) { o.planStore = s }
}

// WithLogger 设置日志器
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithGeneration 设置生成参数
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// New 创建编排器
func New(client llm.Client, registry *tools.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		registry:    registry,
		logger:      log.Nop(),
		maxSteps:    DefaultMaxSteps,
		toolTimeout: DefaultToolTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// processOptions 单次 Process 的选项
type processOptions struct {
	sessionID string
	agent     string
	history   []conversation.Entry
	maxSteps  int
	recorder  *trace.Recorder
}

// ProcessOption 单次查询的可选配置
type ProcessOption func(*processOptions)

// WithSessionID 复用既有会话 ID（多轮会话）
func WithSessionID(id string) ProcessOption {
	return func(p *processOptions) { p.sessionID = id }
}

// WithAgentName 标注会话所属 agent
func WithAgentName(name string) ProcessOption {
	return func(p *processOptions) { p.agent = name }
}

// WithHistory 携带既有会话记录（多轮会话恢复）
func WithHistory(entries []conversation.Entry) ProcessOption {
	return func(p *processOptions) { p.history = entries }
}

// WithMaxStepsOverride 覆盖本次查询的步数上限；0 合法且立即失败
func WithMaxStepsOverride(n int) ProcessOption {
	return func(p *processOptions) { p.maxSteps = n }
}

// WithRecorder 注入外部记录器（步进调试 / SSE 旁路）
func WithRecorder(r *trace.Recorder) ProcessOption {
	return func(p *processOptions) { p.recorder = r }
}

// Result 一次查询的结构化结果；失败与取消也返回部分进度，绝不丢弃
type Result struct {
	SessionID    string
	State        State
	Answer       string
	Steps        int
	Elapsed      time.Duration
	FailReason   string
	Conversation []conversation.Entry
	Trace        trace.Trace
}

// Process 执行一次查询。终态为 FAILED 时返回 (result, err)，err 包含
// 对应哨兵错误；COMPLETION 与 CANCELLED 返回 (result, nil)。
// 取消只在循环边界采样；执行中的工具在硬超时内尽力放弃。
func (o *Orchestrator) Process(ctx context.Context, query string, opts ...ProcessOption) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidArg, "orchestrator: empty query")
	}

	po := processOptions{maxSteps: -1}
	for _, opt := range opts {
		opt(&po)
	}
	maxSteps := o.maxSteps
	if po.maxSteps >= 0 {
		maxSteps = po.maxSteps
	}
	sessionID := po.sessionID
	if sessionID == "" {
		sessionID = "session-" + uuid.New().String()
	}
	rec := po.recorder
	if rec == nil {
		rec = trace.NewRecorder(sessionID)
	}
	if po.agent != "" {
		rec.SetAgent(po.agent)
	}

	conv := conversation.NewLog()
	if len(po.history) > 0 {
		conv = conversation.NewLogFromEntries(po.history)
	}
	conv.Append(conversation.Entry{Role: conversation.RoleUser, Content: query})

	sess := &Session{
		ID:           sessionID,
		State:        StatePlanning,
		MaxSteps:     maxSteps,
		Conversation: conv,
		CreatedAt:    time.Now(),
	}

	ctx, span := tracing.StartSessionSpan(ctx, sessionID, po.agent)
	defer span.End()
	start := time.Now()

	finish := func(state State, answer, reason string) *Result {
		if err := sess.transition(state); err != nil {
			o.logger.Error("会话状态转移失败", "session_id", sessionID, "error", err)
		}
		sess.FailReason = reason
		rec.SetFinal(state.String())
		metrics.SessionTotal.WithLabelValues(state.String()).Inc()
		metrics.SessionDuration.WithLabelValues(po.agent).Observe(time.Since(start).Seconds())
		return &Result{
			SessionID:    sessionID,
			State:        state,
			Answer:       answer,
			Steps:        sess.StepCount,
			Elapsed:      time.Since(start),
			FailReason:   reason,
			Conversation: conv.Entries(),
			Trace:        rec.Snapshot(),
		}
	}

	defs := toolDefs(o.registry)
	var lastFailKey string
	var lastFailName string
	failRepeat := 0

	for {
		// 取消只在此处采样
		if err := ctx.Err(); err != nil {
			o.logger.Info("会话被取消", "session_id", sessionID, "steps", sess.StepCount)
			return finish(StateCancelled, "", "cancelled: "+err.Error()), nil
		}

		// 步数上界在发起生成之前检查；max_steps=0 时不触达 LLM
		if sess.StepCount >= sess.MaxSteps {
			reason := xerrors.Wrapf(xerrors.ErrStepLimitExceeded, "orchestrator: session %s after %d steps", sessionID, sess.StepCount)
			return finish(StateFailed, "", reason.Error()), reason
		}

		// 每个生成步前重读外部计划
		planText := ""
		if o.planStore != nil {
			p, err := o.planStore.Read(ctx)
			if err != nil {
				o.logger.Warn("读取计划失败，本步继续", "session_id", sessionID, "error", err)
			} else {
				planText = plan.Render(p)
			}
		}

		// 步进门：启用时阻塞等待放行
		if err := rec.BeforeStep(ctx); err != nil {
			return finish(StateCancelled, "", "cancelled: "+err.Error()), nil
		}

		sess.StepCount++
		metrics.StepTotal.Inc()
		stepState := sess.State
		stepStart := time.Now()

		stepCtx, stepSpan := tracing.StartStepSpan(ctx, sessionID, sess.StepCount)
		resp, err := o.client.ChatWithContext(stepCtx, llm.Request{
			System:      buildSystemPrompt(o.registry.Descriptors(), planText),
			Messages:    conv.Messages(),
			Tools:       defs,
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		})
		stepSpan.End()
		if err != nil {
			if ctx.Err() != nil {
				return finish(StateCancelled, "", "cancelled: "+ctx.Err().Error()), nil
			}
			rec.Record(trace.StepRecord{
				Step:      sess.StepCount,
				State:     stepState.String(),
				Error:     err.Error(),
				ElapsedMS: time.Since(stepStart).Milliseconds(),
			})
			reason := xerrors.Wrapf(err, "orchestrator: step %d", sess.StepCount)
			return finish(StateFailed, "", reason.Error()), reason
		}

		// 无工具调用 = 最终回答
		if len(resp.ToolCalls) == 0 {
			conv.Append(conversation.Entry{Role: conversation.RoleAssistant, Content: resp.Content})
			rec.Record(trace.StepRecord{
				Step:      sess.StepCount,
				State:     stepState.String(),
				Response:  resp.Content,
				ElapsedMS: time.Since(stepStart).Milliseconds(),
			})
			return finish(StateCompletion, resp.Content, ""), nil
		}

		if sess.State == StatePlanning {
			if err := sess.transition(StateExecutingPlan); err != nil {
				reason := xerrors.Wrap(err, "orchestrator")
				return finish(StateFailed, "", reason.Error()), reason
			}
		}

		conv.Append(conversation.Entry{
			Role:      conversation.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// 严格按声明顺序串行调度；每个结果都回写会话
		results := make([]tools.Result, 0, len(resp.ToolCalls))
		noProgress := false
		for _, call := range resp.ToolCalls {
			res := tools.Dispatch(ctx, o.registry, call, o.toolTimeout)
			results = append(results, res)
			conv.Append(conversation.Entry{
				Role:       conversation.RoleTool,
				Content:    res.ContentJSON(),
				ToolName:   call.Name,
				ToolCallID: call.ID,
			})
			if res.Status == tools.StatusError {
				key := failureKey(call)
				if key == lastFailKey {
					failRepeat++
				} else {
					lastFailKey = key
					lastFailName = call.Name
					failRepeat = 1
				}
				if failRepeat >= NoProgressLimit {
					noProgress = true
					break
				}
			} else {
				lastFailKey = ""
				failRepeat = 0
			}
		}

		rec.Record(trace.StepRecord{
			Step:        sess.StepCount,
			State:       stepState.String(),
			Response:    resp.Content,
			ToolCalls:   resp.ToolCalls,
			ToolResults: results,
			ElapsedMS:   time.Since(stepStart).Milliseconds(),
		})

		if noProgress {
			reason := xerrors.Wrapf(xerrors.ErrNoProgress, "orchestrator: %d consecutive identical failing calls to %s", NoProgressLimit, lastFailName)
			return finish(StateFailed, "", reason.Error()), reason
		}
	}
}

// toolDefs 渲染注册表为 LLM 工具声明
func toolDefs(reg *tools.Registry) []llm.ToolDef {
	descs := reg.Descriptors()
	defs := make([]llm.ToolDef, 0, len(descs))
	for _, d := range descs {
		defs = append(defs, llm.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return defs
}

// failureKey 工具名 + 规范化参数（map 序列化按键排序），用于无进展判定
func failureKey(call llm.ToolCall) string {
	args, err := call.ArgumentsMap()
	if err != nil {
		return call.Name + "\x00" + string(call.Arguments)
	}
	canonical, err := json.Marshal(args)
	if err != nil {
		return call.Name + "\x00" + string(call.Arguments)
	}
	return call.Name + "\x00" + string(canonical)
}
