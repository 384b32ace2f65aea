package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWaitAndRelease(t *testing.T) {
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{
		"openai": {RequestsPerMinute: 6000, TokensPerMinute: 600000, MaxConcurrent: 1},
	}, nil)

	ctx := context.Background()
	require.NoError(t, limiter.Wait(ctx, "openai", 100))

	// 并发 slot 已满，带已取消 ctx 的第二次 Wait 应失败
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := limiter.Wait(cancelled, "openai", 100)
	assert.Error(t, err)

	limiter.Release("openai")
	require.NoError(t, limiter.Wait(ctx, "openai", 100))
	limiter.Release("openai")
}

func TestRateLimiterUnknownProviderUsesDefaults(t *testing.T) {
	limiter := NewLLMRateLimiter(nil, &LLMLimitConfig{RequestsPerMinute: 6000, MaxConcurrent: 2})
	require.NoError(t, limiter.Wait(context.Background(), "qwen", 10))
	limiter.Release("qwen")

	stats := limiter.GetStats("qwen")
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats["max_concurrent"])
}

func TestRecordTokenUsageStats(t *testing.T) {
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{
		"openai": {MaxConcurrent: 1},
	}, nil)
	limiter.RecordTokenUsage("openai", 42)
	stats := limiter.GetStats("openai")
	require.NotNil(t, stats)
	assert.Equal(t, 42, stats["tokens_used_minute"])
}

type fixedClient struct {
	resp Response
}

func (f *fixedClient) Chat(req Request) (*Response, error) {
	return f.ChatWithContext(context.Background(), req)
}

func (f *fixedClient) ChatWithContext(ctx context.Context, req Request) (*Response, error) {
	r := f.resp
	return &r, nil
}

func (f *fixedClient) Model() string    { return "test-model" }
func (f *fixedClient) Provider() string { return "test" }
func (f *fixedClient) SetModel(string)  {}
func (f *fixedClient) SetAPIKey(string) {}

func TestRateLimitedClientPassThrough(t *testing.T) {
	inner := &fixedClient{resp: Response{Content: "done", Usage: Usage{PromptTokens: 3, CompletionTokens: 5}}}
	c := NewRateLimitedClient(inner, NewLLMRateLimiter(nil, &LLMLimitConfig{MaxConcurrent: 4}))

	resp, err := c.ChatWithContext(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, "test-model", c.Model())
	assert.Equal(t, "test", c.Provider())
}

func TestToolCallArgumentsMap(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "add", Arguments: []byte(`{"a":1,"b":2}`)}
	m, err := call.ArgumentsMap()
	require.NoError(t, err)
	assert.Equal(t, float64(1), m["a"])

	empty := ToolCall{Name: "now"}
	m, err = empty.ArgumentsMap()
	require.NoError(t, err)
	assert.Empty(t, m)

	bad := ToolCall{Name: "x", Arguments: []byte(`not-json`)}
	_, err = bad.ArgumentsMap()
	assert.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, estimateTokens("", 0))
	assert.Equal(t, 2+64, estimateTokens("12345678", 64))
}
