// Package server 暴露 HTTP 接口：/run 分发指令，/read 读取根目录内的文件。
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"task-agent/internal/agent"
	"task-agent/internal/logger"
	"task-agent/internal/observability"
	"task-agent/internal/sandbox"
	"task-agent/internal/tools"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

// Dispatcher 执行一条指令。
type Dispatcher interface {
	Run(ctx context.Context, instruction string) tools.DispatchResult
}

// Asker 返回分类器的原始工具调用，仅用于诊断。
type Asker interface {
	Select(ctx context.Context, instruction string) (agent.ToolCall, error)
}

type Options struct {
	Addr           string
	CORSOrigins    []string
	TrustedProxies []string
}

type Server struct {
	addr       string
	router     *gin.Engine
	dispatcher Dispatcher
	asker      Asker
	registry   *tools.Registry
	root       sandbox.Root
	started    time.Time
	log        *logger.LogEntry
}

func New(d Dispatcher, asker Asker, registry *tools.Registry, root sandbox.Root, opts Options) *Server {
	observability.RegisterMetrics()
	log := logger.Named("server")
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger.Named("http")))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	// 非法条目之前已解析的地址仍然生效，其余被忽略。
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		log.Warnf("trusted_proxies %v: %v", opts.TrustedProxies, err)
	}

	s := &Server{
		addr:       opts.Addr,
		router:     r,
		dispatcher: d,
		asker:      asker,
		registry:   registry,
		root:       root,
		started:    time.Now(),
		log:        log,
	}
	s.registerRoutes()
	return s
}

// corsConfig 包含 "*" 时放开全部来源。
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	if len(cleaned) == 0 || slices.Contains(cleaned, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = cleaned
	return cfg
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe 阻塞直到 ctx 取消或监听失败；取消后等待进行中的请求结束。
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s (root %s)", s.addr, s.root.Path())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.router.POST("/run", s.handleRun)
	s.router.GET("/read", s.handleRead)
	s.router.GET("/ask", s.handleAsk)
	s.router.GET("/operations", s.handleOperations)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"uptime":     time.Since(s.started).Round(time.Second).String(),
			"service":    "task-agent",
			"version":    version,
			"operations": s.registry.Len(),
		})
	})
}
