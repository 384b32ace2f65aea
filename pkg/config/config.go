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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Model      ModelConfig      `mapstructure:"model"`
	Stores     StoresConfig     `mapstructure:"stores"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// AgentConfig 编排循环配置
type AgentConfig struct {
	MaxSteps    int             `mapstructure:"max_steps"`    // 每会话 LLM 轮次上限，<=0 使用默认 8
	ToolTimeout string          `mapstructure:"tool_timeout"` // 单次工具调用硬超时，如 "30s"
	PlanFile    string          `mapstructure:"plan_file"`    // 计划清单文件路径，空则使用内存计划
	Shortcuts   []AgentShortcut `mapstructure:"shortcuts"`    // 暴露为 POST /api/agents/:name 的命名入口
}

// AgentShortcut 命名 agent 入口；MaxSteps 为 0 时继承 Agent.MaxSteps
type AgentShortcut struct {
	Name     string `mapstructure:"name"`
	MaxSteps int    `mapstructure:"max_steps"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// LLMConfig LLM 模型配置
type LLMConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name          string  `mapstructure:"name"`
	ContextWindow int     `mapstructure:"context_window"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
}

// DefaultsConfig 默认模型配置
type DefaultsConfig struct {
	LLM string `mapstructure:"llm"` // "provider/model"，如 "openai/gpt-4o-mini"
}

// StoresConfig 会话与追踪存储配置
type StoresConfig struct {
	Conversation ConversationStoreConfig `mapstructure:"conversation"`
	Trace        TraceStoreConfig        `mapstructure:"trace"`
}

// ConversationStoreConfig 会话记录存储（memory | redis）
type ConversationStoreConfig struct {
	Type     string `mapstructure:"type"`
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"` // 会话过期时间，如 "24h"，空则不过期
}

// TraceStoreConfig 步进追踪存储（memory | postgres）
type TraceStoreConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"` // Postgres 连接串，type=postgres 时必填
}

// SecretsConfig Secret Store 配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // vault | env | memory
	Config   map[string]string `mapstructure:"config"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// RateLimitsConfig 限流配置（LLM provider 维度）
type RateLimitsConfig struct {
	LLM map[string]LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig 单个 LLM Provider 的限流配置
type LLMRateLimitConfig struct {
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if err := replaceEnvVars(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadAPIConfigWithModel 加载 API 配置并合并 model 配置（configs/api.yaml + configs/model.yaml）
func LoadAPIConfigWithModel() (*Config, error) {
	dir := os.Getenv("AGENT_CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	cfg, err := LoadConfig(filepath.Join(dir, "api.yaml"))
	if err != nil {
		return nil, err
	}

	modelPath := filepath.Join(dir, "model.yaml")
	if _, statErr := os.Stat(modelPath); statErr == nil {
		v := viper.New()
		v.SetConfigFile(modelPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取模型配置文件: %w", err)
		}
		var mc struct {
			Model ModelConfig `mapstructure:"model"`
		}
		if err := v.Unmarshal(&mc); err != nil {
			return nil, fmt.Errorf("无法解析模型配置文件: %w", err)
		}
		cfg.Model = mc.Model
		if err := replaceEnvVars(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// replaceEnvVars 替换配置中的环境变量（api_key: ${OPENAI_API_KEY} 形式）
func replaceEnvVars(config *Config) error {
	for provider, providerConfig := range config.Model.LLM.Providers {
		if strings.HasPrefix(providerConfig.APIKey, "$") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(providerConfig.APIKey, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				providerConfig.APIKey = val
				config.Model.LLM.Providers[provider] = providerConfig
			}
		}
	}
	return nil
}

// DefaultLLM 解析 model.defaults.llm，返回 provider 与模型名；未配置时返回 openai 默认
func (c *Config) DefaultLLM() (provider string, model string) {
	provider, model = "openai", ""
	if c == nil || c.Model.Defaults.LLM == "" {
		return provider, model
	}
	parts := strings.SplitN(c.Model.Defaults.LLM, "/", 2)
	provider = parts[0]
	if len(parts) == 2 {
		model = parts[1]
	}
	return provider, model
}
