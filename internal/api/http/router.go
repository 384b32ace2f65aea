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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"agent-platform/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	jwt        *jwt.HertzJWTMiddleware
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{
		handler:    handler,
		middleware: mw,
	}
}

// SetJWT 启用 JWT 认证；须在 Build 之前调用。
// 启用后 /api/agents 与 /api/sessions 需要 Bearer token，/api/login 签发。
func (r *Router) SetJWT(j *jwt.HertzJWTMiddleware) {
	r.jwt = j
}

// Build 创建 Hertz server 并注册全部路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	serverOpts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(serverOpts...)
	h.Use(r.middleware.CORS(), r.middleware.AccessLog())

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/tools", r.handler.ListTools)
	api.GET("/system/metrics", r.handler.SystemMetrics)
	api.POST("/rpc", r.handler.JSONRPC)

	protected := api.Group("/")
	if r.jwt != nil {
		api.POST("/login", r.jwt.LoginHandler)
		protected.Use(r.jwt.MiddlewareFunc())
	}
	protected.POST("/agents/:name", r.handler.ProcessAgent)
	protected.GET("/sessions/:id", r.handler.GetSession)
	protected.GET("/sessions/:id/trace", r.handler.GetSessionTrace)

	// JSON-RPC 客户端（MCP 风格）直接 POST 根路径
	h.POST("/", r.handler.JSONRPC)
	// OpenAI 兼容面
	h.POST("/v1/chat/completions", r.handler.ChatCompletions)

	return h
}
