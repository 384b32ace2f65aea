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

package app

import (
	"context"
	"fmt"
	"time"

	"agent-platform/internal/agent/plan"
	"agent-platform/internal/agent/tools"
	"agent-platform/internal/agent/trace"
	"agent-platform/internal/model/llm"
	"agent-platform/internal/runtime/conversation"
	"agent-platform/pkg/config"
	"agent-platform/pkg/log"
	"agent-platform/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 等入口复用，避免在 cmd 内写装配逻辑
type Bootstrap struct {
	Config            *config.Config
	Logger            *log.Logger
	LLMClient         llm.Client
	Registry          *tools.Registry
	PlanStore         plan.Store
	ConversationStore conversation.Store
	TraceStore        trace.Store
	SecretStore       secrets.Store
}

// NewBootstrap 根据配置创建 Bootstrap（日志、LLM、存储、工具注册表）
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	var secretStore secrets.Store
	if cfg != nil {
		secretStore, err = secrets.NewStore(secrets.Config{
			Provider: cfg.Secrets.Provider,
			Config:   cfg.Secrets.Config,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 secret store 失败: %w", err)
		}
	} else {
		secretStore = secrets.NewEnvStore()
	}

	llmClient, err := NewLLMClientFromConfig(cfg, secretStore)
	if err != nil {
		return nil, fmt.Errorf("初始化 LLM 客户端失败: %w", err)
	}

	planStore, err := newPlanStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化计划存储失败: %w", err)
	}

	convStore, err := newConversationStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化会话存储失败: %w", err)
	}

	traceStore, err := newTraceStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 trace 存储失败: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltin(registry, planStore); err != nil {
		return nil, fmt.Errorf("注册内置工具失败: %w", err)
	}

	return &Bootstrap{
		Config:            cfg,
		Logger:            logger,
		LLMClient:         llmClient,
		Registry:          registry,
		PlanStore:         planStore,
		ConversationStore: convStore,
		TraceStore:        traceStore,
		SecretStore:       secretStore,
	}, nil
}

// NewLLMClientFromConfig 按 model.defaults.llm 创建客户端并套上限流。
// api_key 优先级：providers 配置 > secret store（键 llm/<provider>/api_key）。
func NewLLMClientFromConfig(cfg *config.Config, secretStore secrets.Store) (llm.Client, error) {
	provider, model := cfg.DefaultLLM()

	apiKey := ""
	baseURL := ""
	if cfg != nil {
		if pc, ok := cfg.Model.LLM.Providers[provider]; ok {
			apiKey = pc.APIKey
			baseURL = pc.BaseURL
		}
	}
	if apiKey == "" && secretStore != nil {
		if v, err := secretStore.Get(context.Background(), "llm/"+provider+"/api_key"); err == nil {
			apiKey = v
		}
	}

	client, err := llm.NewClient(provider, model, apiKey, baseURL)
	if err != nil {
		return nil, err
	}

	if cfg == nil || len(cfg.RateLimits.LLM) == 0 {
		return client, nil
	}
	limits := make(map[string]llm.LLMLimitConfig, len(cfg.RateLimits.LLM))
	for name, rl := range cfg.RateLimits.LLM {
		limits[name] = llm.LLMLimitConfig{
			TokensPerMinute:   rl.TokensPerMinute,
			RequestsPerMinute: rl.RequestsPerMinute,
			MaxConcurrent:     rl.MaxConcurrent,
		}
	}
	return llm.NewRateLimitedClient(client, llm.NewLLMRateLimiter(limits, nil)), nil
}

func newPlanStore(cfg *config.Config) (plan.Store, error) {
	if cfg != nil && cfg.Agent.PlanFile != "" {
		return plan.NewFileStore(cfg.Agent.PlanFile)
	}
	return plan.NewMemoryStore(), nil
}

func newConversationStore(cfg *config.Config) (conversation.Store, error) {
	if cfg == nil || cfg.Stores.Conversation.Type != "redis" {
		return conversation.NewMemoryStore(), nil
	}
	sc := cfg.Stores.Conversation
	ttl := time.Duration(0)
	if sc.TTL != "" {
		d, err := time.ParseDuration(sc.TTL)
		if err != nil {
			return nil, fmt.Errorf("会话 TTL 无效: %w", err)
		}
		ttl = d
	}
	return conversation.NewRedisStore(context.Background(), sc.Addr, sc.Password, sc.DB, ttl)
}

func newTraceStore(cfg *config.Config) (trace.Store, error) {
	if cfg == nil || cfg.Stores.Trace.Type != "postgres" {
		return trace.NewMemoryStore(), nil
	}
	if cfg.Stores.Trace.DSN == "" {
		return nil, fmt.Errorf("stores.trace.type=postgres 需要 dsn")
	}
	return trace.NewPGStore(context.Background(), cfg.Stores.Trace.DSN)
}
