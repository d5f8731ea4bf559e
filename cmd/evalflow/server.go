package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/evalflow/api/handlers"
	"github.com/BaSui01/evalflow/config"
	"github.com/BaSui01/evalflow/internal/metrics"
	"github.com/BaSui01/evalflow/internal/runstore"
	"github.com/BaSui01/evalflow/internal/server"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 持有 API 与 Metrics 两个 HTTP 服务
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	dispatcher handlers.Dispatcher
	store      *runstore.Store
	collector  *metrics.Collector

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// serverDeps 是 Server 的外部依赖；store 可为 nil（历史记录关闭）
type serverDeps struct {
	dispatcher handlers.Dispatcher
	store      *runstore.Store
	collector  *metrics.Collector
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, deps serverDeps, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		logger:     logger,
		dispatcher: deps.dispatcher,
		store:      deps.store,
		collector:  deps.collector,
	}
}

// healthSkipPaths 不需要 API Key 的路径
var healthSkipPaths = []string{"/health", "/healthz", "/ready", "/version"}

// Handler 构建 API 路由与中间件链。ctx 控制限流器后台清理的生命周期。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewBackendConfigCheck(s.cfg.BackendReady))
	if s.store != nil {
		health.RegisterCheck(handlers.NewDatabaseHealthCheck("store", s.store.Ping))
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	llmHandler := handlers.NewLLMHandler(s.dispatcher, s.cfg.Server.MaxBodyBytes, s.logger)
	mux.HandleFunc("POST /api/llm", llmHandler.HandleDispatch)

	if s.store != nil {
		runs := handlers.NewRunsHandler(s.store, s.logger)
		mux.HandleFunc("GET /api/v1/runs", runs.HandleList)
		mux.HandleFunc("GET /api/v1/runs/{id}", runs.HandleGet)
	}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
	}
	if s.collector != nil {
		middlewares = append(middlewares, MetricsMiddleware(s.collector))
	}
	middlewares = append(middlewares,
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, healthSkipPaths, s.logger),
	)
	return Chain(mux, middlewares...)
}

// Run 启动两个服务并阻塞到 ctx 取消或任一服务异常退出
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.httpManager = server.NewManager("api", s.Handler(ctx), server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager("metrics", metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	s.logger.Info("starting servers",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("run_store", s.store != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	g.Go(func() error { return s.metricsManager.Run(gctx) })
	return g.Wait()
}
