package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		SessionDuration, SessionTotal,
		StepTotal, ToolDuration,
		LLMTokensTotal, RateLimitWaitSeconds,
	)
}

// SessionDuration 会话执行耗时（秒）
var SessionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "agent_session_duration_seconds",
		Help:    "会话执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"agent"},
)

// SessionTotal 会话总数（按终态）
var SessionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_session_total",
		Help: "会话总数（按终态）",
	},
	[]string{"state"}, // completion | failed | cancelled
)

// StepTotal LLM 步数总计
var StepTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "agent_step_total",
		Help: "LLM 步数总计",
	},
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "agent_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool", "status"},
)

// LLMTokensTotal LLM 调用 token 数
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_llm_tokens_total",
		Help: "LLM 调用 token 总数",
	},
	[]string{"direction"}, // input | output
)

// RateLimitWaitSeconds 限流等待耗时（秒）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "agent_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "provider"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
