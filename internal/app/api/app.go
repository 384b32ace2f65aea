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

package api

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"agent-platform/internal/agent/orchestrator"
	"agent-platform/internal/api/http"
	"agent-platform/internal/api/http/middleware"
	"agent-platform/internal/app"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 HTTP Router、Handler、Middleware；执行语义在 orchestrator）
type App struct {
	config       *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config

	orchOpts := []orchestrator.Option{
		orchestrator.WithPlanStore(bootstrap.PlanStore),
		orchestrator.WithLogger(bootstrap.Logger),
	}
	defaultMaxSteps := 0
	if cfg != nil {
		if cfg.Agent.MaxSteps > 0 {
			defaultMaxSteps = cfg.Agent.MaxSteps
			orchOpts = append(orchOpts, orchestrator.WithMaxSteps(cfg.Agent.MaxSteps))
		}
		if cfg.Agent.ToolTimeout != "" {
			orchOpts = append(orchOpts, orchestrator.WithToolTimeout(parseDuration(cfg.Agent.ToolTimeout, orchestrator.DefaultToolTimeout)))
		}
		providerName, model := cfg.DefaultLLM()
		if pc, ok := cfg.Model.LLM.Providers[providerName]; ok {
			if mi, ok := pc.Models[model]; ok && (mi.Temperature > 0 || mi.MaxTokens > 0) {
				orchOpts = append(orchOpts, orchestrator.WithGeneration(mi.Temperature, mi.MaxTokens))
			}
		}
	}

	handler := http.NewHandler(bootstrap.Registry, bootstrap.Logger)
	handler.SetConversationStore(bootstrap.ConversationStore)
	handler.SetTraceStore(bootstrap.TraceStore)

	// 默认 agent 始终可用；shortcuts 暴露额外的命名入口
	handler.SetAgent("assistant", orchestrator.New(bootstrap.LLMClient, bootstrap.Registry, orchOpts...))
	if cfg != nil {
		for _, sc := range cfg.Agent.Shortcuts {
			if sc.Name == "" || sc.Name == "assistant" {
				continue
			}
			opts := orchOpts
			if sc.MaxSteps > 0 && sc.MaxSteps != defaultMaxSteps {
				opts = append(append([]orchestrator.Option{}, orchOpts...), orchestrator.WithMaxSteps(sc.MaxSteps))
			}
			handler.SetAgent(sc.Name, orchestrator.New(bootstrap.LLMClient, bootstrap.Registry, opts...))
		}
	}

	mw := middleware.NewMiddleware()
	router := http.NewRouter(handler, mw)

	if cfg != nil && cfg.API.Middleware.Auth && cfg.API.Middleware.JWTKey != "" {
		timeout := parseDuration(cfg.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := parseDuration(cfg.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth([]byte(cfg.API.Middleware.JWTKey), timeout, maxRefresh)
		if err != nil {
			bootstrap.Logger.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			bootstrap.Logger.Info("JWT 认证已启用")
		}
	}

	return &App{
		config: bootstrap,
		router: router,
	}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.config.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	output := os.Stdout
	if a.config.Config != nil && a.config.Config.Log.File != "" {
		f, err := os.OpenFile(a.config.Config.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	level := ""
	if a.config.Config != nil {
		level = a.config.Config.Log.Level
	}
	switch level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)

	// 可选：启用链路追踪（OpenTelemetry）
	if a.config.Config != nil && a.config.Config.Monitoring.Tracing.Enable {
		serviceName := a.config.Config.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "agent-api"
		}
		exportEndpoint := a.config.Config.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if a.config.Config.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			p := provider.NewOpenTelemetryProvider(opts...)
			a.otelProvider = p
			tracerOpt, cfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(cfg))
			a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		} else {
			a.hertz = a.router.Build(addr)
		}
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// parseDuration 解析时长字符串，无效或空时返回 defaultVal
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
