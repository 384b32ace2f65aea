package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-platform/internal/agent/plan"
	"agent-platform/internal/model/llm"
)

func builtinRegistry(t *testing.T) (*Registry, plan.Store) {
	t.Helper()
	reg := NewRegistry()
	planStore := plan.NewMemoryStore()
	require.NoError(t, planStore.Write(context.Background(), plan.Parse("- [ ] a\n- [ ] b\n")))
	require.NoError(t, RegisterBuiltin(reg, planStore))
	return reg, planStore
}

func TestDispatchSuccess(t *testing.T) {
	reg, _ := builtinRegistry(t)
	res := Dispatch(context.Background(), reg, llm.ToolCall{
		ID: "c1", Name: "add", Arguments: []byte(`{"a":2,"b":3}`),
	}, time.Second)

	assert.Equal(t, StatusSuccess, res.Status)
	payload, ok := res.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(5), payload["sum"])
	assert.Contains(t, res.ContentJSON(), `"sum":5`)
}

func TestDispatchUnknownToolIsErrorResult(t *testing.T) {
	reg, _ := builtinRegistry(t)
	res := Dispatch(context.Background(), reg, llm.ToolCall{ID: "c1", Name: "nope"}, time.Second)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestDispatchValidationFailure(t *testing.T) {
	reg, _ := builtinRegistry(t)
	res := Dispatch(context.Background(), reg, llm.ToolCall{
		ID: "c1", Name: "add", Arguments: []byte(`{"a":"x"}`),
	}, time.Second)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "invalid argument")
}

func TestDispatchMalformedArguments(t *testing.T) {
	reg, _ := builtinRegistry(t)
	res := Dispatch(context.Background(), reg, llm.ToolCall{
		ID: "c1", Name: "echo", Arguments: []byte(`not-json`),
	}, time.Second)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "malformed")
}

func TestDispatchTimeout(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(New("sleep", "block until cancelled", ObjectSchema(map[string]any{}),
		func(ctx context.Context, args map[string]any) (any, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return nil, ctx.Err()
		})))

	start := time.Now()
	res := Dispatch(context.Background(), reg, llm.ToolCall{ID: "c1", Name: "sleep", Arguments: []byte(`{}`)}, 50*time.Millisecond)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "tool timeout")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDispatchPanicBecomesErrorResult(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(New("boom", "", ObjectSchema(map[string]any{}),
		func(ctx context.Context, args map[string]any) (any, error) {
			panic("kaboom")
		})))
	res := Dispatch(context.Background(), reg, llm.ToolCall{ID: "c1", Name: "boom", Arguments: []byte(`{}`)}, time.Second)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "kaboom")
}

func TestPlanUpdateToolMutatesStore(t *testing.T) {
	reg, planStore := builtinRegistry(t)
	res := Dispatch(context.Background(), reg, llm.ToolCall{
		ID: "c1", Name: "plan_update", Arguments: []byte(`{"step_id":"step-2","status":"done"}`),
	}, time.Second)
	require.Equal(t, StatusSuccess, res.Status, res.Error)

	p, err := planStore.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plan.StatusDone, p.Steps[1].Status)
}

func TestPlanUpdateRejectsBogusStatus(t *testing.T) {
	reg, _ := builtinRegistry(t)
	res := Dispatch(context.Background(), reg, llm.ToolCall{
		ID: "c1", Name: "plan_update", Arguments: []byte(`{"step_id":"step-1","status":"bogus"}`),
	}, time.Second)
	assert.Equal(t, StatusError, res.Status)
}

func TestEchoTool(t *testing.T) {
	reg, _ := builtinRegistry(t)
	res := Dispatch(context.Background(), reg, llm.ToolCall{
		ID: "c1", Name: "echo", Arguments: []byte(`{"msg":"hi"}`),
	}, time.Second)
	require.Equal(t, StatusSuccess, res.Status)
	payload := res.Payload.(map[string]any)
	assert.Equal(t, "hi", payload["msg"])
}

func TestNowTool(t *testing.T) {
	reg, _ := builtinRegistry(t)
	res := Dispatch(context.Background(), reg, llm.ToolCall{ID: "c1", Name: "now", Arguments: []byte(`{}`)}, time.Second)
	require.Equal(t, StatusSuccess, res.Status)
	payload := res.Payload.(map[string]any)
	now, ok := payload["now"].(string)
	require.True(t, ok)
	assert.True(t, strings.Contains(now, "T"))
}
