package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-platform/internal/agent/plan"
	"agent-platform/internal/agent/tools"
	"agent-platform/internal/agent/trace"
	"agent-platform/internal/model/llm"
	"agent-platform/internal/runtime/conversation"
	xerrors "agent-platform/pkg/errors"
)

// scriptClient 按脚本逐轮返回响应；脚本耗尽后重复最后一条
type scriptClient struct {
	mu        sync.Mutex
	responses []llm.Response
	err       error
	calls     int
}

func (s *scriptClient) Chat(req llm.Request) (*llm.Response, error) {
	return s.ChatWithContext(context.Background(), req)
}

func (s *scriptClient) ChatWithContext(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[idx]
	return &r, nil
}

func (s *scriptClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptClient) Model() string    { return "script" }
func (s *scriptClient) Provider() string { return "script" }
func (s *scriptClient) SetModel(string)  {}
func (s *scriptClient) SetAPIKey(string) {}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: []byte(args)}
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltin(reg, nil))
	return reg
}

func TestDirectAnswerCompletesAtStepOne(t *testing.T) {
	client := &scriptClient{responses: []llm.Response{{Content: "the answer is 4"}}}
	o := New(client, testRegistry(t))

	res, err := o.Process(context.Background(), "what is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, StateCompletion, res.State)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, "the answer is 4", res.Answer)
	assert.Equal(t, []string{"planning"}, res.Trace.StateSequence())

	entries := res.Conversation
	require.Len(t, entries, 2)
	assert.Equal(t, conversation.RoleUser, entries[0].Role)
	assert.Equal(t, conversation.RoleAssistant, entries[1].Role)
}

func TestToolRoundTripCompletesAtStepTwo(t *testing.T) {
	client := &scriptClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "add", `{"a":2,"b":2}`)}},
		{Content: "2+2 = 4"},
	}}
	o := New(client, testRegistry(t))

	res, err := o.Process(context.Background(), "what is 2+2? use the add tool")
	require.NoError(t, err)
	assert.Equal(t, StateCompletion, res.State)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, []string{"planning", "executing_plan"}, res.Trace.StateSequence())

	require.Len(t, res.Trace.Records, 2)
	require.Len(t, res.Trace.Records[0].ToolResults, 1)
	assert.Equal(t, tools.StatusSuccess, res.Trace.Records[0].ToolResults[0].Status)

	// 工具结果以 tool 记录回写会话
	var sawToolEntry bool
	for _, e := range res.Conversation {
		if e.Role == conversation.RoleTool && e.ToolName == "add" {
			sawToolEntry = true
			assert.Contains(t, e.Content, `"sum":4`)
		}
	}
	assert.True(t, sawToolEntry)
}

func TestUnknownToolFeedsBackAndNeverTerminatesFirst(t *testing.T) {
	client := &scriptClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "definitely_missing", `{}`)}},
		{Content: "recovered without the tool"},
	}}
	o := New(client, testRegistry(t))

	res, err := o.Process(context.Background(), "try a tool that does not exist")
	require.NoError(t, err)
	assert.Equal(t, StateCompletion, res.State)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, tools.StatusError, res.Trace.Records[0].ToolResults[0].Status)
	assert.Contains(t, res.Trace.Records[0].ToolResults[0].Error, "unknown tool")
}

func TestNoProgressAfterThreeIdenticalFailures(t *testing.T) {
	failing := llm.Response{ToolCalls: []llm.ToolCall{toolCall("c1", "missing_tool", `{"q":"same"}`)}}
	client := &scriptClient{responses: []llm.Response{failing}}
	o := New(client, testRegistry(t))

	res, err := o.Process(context.Background(), "loop forever")
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrNoProgress))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, NoProgressLimit, res.Steps)
	assert.Contains(t, res.FailReason, "no progress")
}

func TestDifferentFailingArgumentsResetNoProgress(t *testing.T) {
	client := &scriptClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "missing_tool", `{"q":"one"}`)}},
		{ToolCalls: []llm.ToolCall{toolCall("c2", "missing_tool", `{"q":"two"}`)}},
		{ToolCalls: []llm.ToolCall{toolCall("c3", "missing_tool", `{"q":"one"}`)}},
		{Content: "gave up on tools"},
	}}
	o := New(client, testRegistry(t))

	res, err := o.Process(context.Background(), "vary the failure")
	require.NoError(t, err)
	assert.Equal(t, StateCompletion, res.State)
	assert.Equal(t, 4, res.Steps)
}

func TestStepLimitBoundsSession(t *testing.T) {
	looping := llm.Response{ToolCalls: []llm.ToolCall{toolCall("c1", "echo", `{"msg":"again"}`)}}
	client := &scriptClient{responses: []llm.Response{looping}}
	o := New(client, testRegistry(t), WithMaxSteps(3))

	res, err := o.Process(context.Background(), "never finish")
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrStepLimitExceeded))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 3, client.callCount())
}

func TestMaxStepsZeroFailsWithoutLLMCall(t *testing.T) {
	client := &scriptClient{responses: []llm.Response{{Content: "never reached"}}}
	o := New(client, testRegistry(t))

	res, err := o.Process(context.Background(), "anything", WithMaxStepsOverride(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrStepLimitExceeded))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, res.Steps)
	assert.Equal(t, 0, client.callCount())
}

func TestCancellationAfterFirstStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := testRegistry(t)
	require.NoError(t, reg.Register(tools.New("halt", "cancel the session", tools.ObjectSchema(map[string]any{}),
		func(ctx context.Context, args map[string]any) (any, error) {
			cancel()
			return map[string]any{"halted": true}, nil
		})))

	looping := llm.Response{ToolCalls: []llm.ToolCall{toolCall("c1", "halt", `{}`)}}
	client := &scriptClient{responses: []llm.Response{looping}}
	o := New(client, reg, WithMaxSteps(5))

	res, err := o.Process(ctx, "run a 5 step plan")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, 1, res.Steps)
	require.Len(t, res.Trace.Records, 1)
	// 部分会话记录保留
	assert.GreaterOrEqual(t, len(res.Conversation), 3)
}

func TestBackendFailureIsTerminal(t *testing.T) {
	client := &scriptClient{err: xerrors.Wrap(xerrors.ErrBackendUnavailable, "llm: connect refused")}
	o := New(client, testRegistry(t))

	res, err := o.Process(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrBackendUnavailable))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.Steps)
	require.Len(t, res.Trace.Records, 1)
	assert.NotEmpty(t, res.Trace.Records[0].Error)
}

func TestEmptyQueryRejected(t *testing.T) {
	o := New(&scriptClient{responses: []llm.Response{{Content: "x"}}}, testRegistry(t))
	_, err := o.Process(context.Background(), "   ")
	assert.True(t, errors.Is(err, xerrors.ErrInvalidArg))
}

func TestPlanReReadBeforeEachStep(t *testing.T) {
	planStore := plan.NewMemoryStore()
	require.NoError(t, planStore.Write(context.Background(), plan.Parse("- [ ] find numbers\n- [ ] add them\n")))

	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltin(reg, planStore))

	client := &scriptClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "plan_update", `{"step_id":"step-1","status":"done"}`)}},
		{Content: "all steps done"},
	}}
	o := New(client, reg, WithPlanStore(planStore))

	res, err := o.Process(context.Background(), "work the plan")
	require.NoError(t, err)
	assert.Equal(t, StateCompletion, res.State)

	p, err := planStore.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plan.StatusDone, p.Steps[0].Status)
}

func TestTraceReplayReproducesStateSequence(t *testing.T) {
	script := []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "add", `{"a":1,"b":1}`)}},
		{ToolCalls: []llm.ToolCall{toolCall("c2", "echo", `{"msg":"ok"}`)}},
		{Content: "done"},
	}

	run := func() trace.Trace {
		o := New(&scriptClient{responses: script}, testRegistry(t))
		res, err := o.Process(context.Background(), "deterministic run")
		require.NoError(t, err)
		return res.Trace
	}

	first := run()
	data, err := first.Serialize()
	require.NoError(t, err)
	parsed, err := trace.Parse(data)
	require.NoError(t, err)

	second := run()
	assert.Equal(t, parsed.StateSequence(), second.StateSequence())
	assert.Equal(t, len(parsed.Records), len(second.Records))
	for i := range parsed.Records {
		assert.Equal(t, parsed.Records[i].Step, second.Records[i].Step)
		assert.Equal(t, len(parsed.Records[i].ToolCalls), len(second.Records[i].ToolCalls))
	}
}

func TestSteppingGatePausesBeforeEachStep(t *testing.T) {
	rec := trace.NewRecorder("session-step")
	rec.EnableStepping()

	client := &scriptClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "echo", `{"msg":"one"}`)}},
		{Content: "finished"},
	}}
	o := New(client, testRegistry(t))

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.Process(context.Background(), "step through", WithRecorder(rec))
		done <- outcome{res, err}
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, client.callCount())

	rec.Continue()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 1, rec.Len())

	rec.Continue()
	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, StateCompletion, out.res.State)
		assert.Equal(t, 2, out.res.Steps)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not complete after stepping through")
	}
}

func TestMultiTurnHistoryResumes(t *testing.T) {
	client := &scriptClient{responses: []llm.Response{{Content: "second answer"}}}
	o := New(client, testRegistry(t))

	history := []conversation.Entry{
		{Role: conversation.RoleUser, Content: "first question"},
		{Role: conversation.RoleAssistant, Content: "first answer"},
	}
	res, err := o.Process(context.Background(), "follow-up",
		WithSessionID("session-multi"), WithHistory(history))
	require.NoError(t, err)
	assert.Equal(t, "session-multi", res.SessionID)
	require.Len(t, res.Conversation, 4)
	assert.Equal(t, "first question", res.Conversation[0].Content)
	assert.Equal(t, "follow-up", res.Conversation[2].Content)
}

func TestSessionTransitionMonotonic(t *testing.T) {
	s := &Session{State: StatePlanning}
	require.NoError(t, s.transition(StateExecutingPlan))
	assert.Error(t, s.transition(StatePlanning))
	require.NoError(t, s.transition(StateCompletion))
	assert.Error(t, s.transition(StateFailed))
	assert.True(t, s.State.Terminal())
}
