package llm

import (
	"context"
	"encoding/json"
)

// Client LLM 客户端接口
type Client interface {
	// Chat 聊天（可携带工具声明，返回最终文本或工具调用请求）
	Chat(req Request) (*Response, error)
	// ChatWithContext 使用上下文聊天
	ChatWithContext(ctx context.Context, req Request) (*Response, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
	// SetModel 设置模型
	SetModel(model string)
	// SetAPIKey 设置 API Key
	SetAPIKey(apiKey string)
}

// Message 聊天消息
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`         // tool 消息：工具名
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool 消息：对应的调用 ID
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant 消息：请求的工具调用
}

// ToolCall 模型请求的一次工具调用；Arguments 为 JSON 对象原文
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsMap 将 Arguments 解析为 map；空参数返回空 map
func (c ToolCall) ArgumentsMap() (map[string]any, error) {
	if len(c.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Arguments, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// ToolDef 暴露给模型的工具声明
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request 一次 chat 请求
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDef
	Temperature float64
	MaxTokens   int
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response 一次 chat 响应；ToolCalls 非空时 Content 可能为空
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// NewClient 创建新的 LLM 客户端；baseURL 用于 OpenAI 兼容端点（如 Qwen/DashScope），空则用默认或环境变量
func NewClient(provider, model, apiKey string, baseURL string) (Client, error) {
	switch provider {
	case "openai", "qwen":
		return NewOpenAIClientWithBaseURL(model, apiKey, baseURL)
	default:
		return NewOpenAIClientWithBaseURL(model, apiKey, baseURL)
	}
}
