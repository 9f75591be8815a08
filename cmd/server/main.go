// ShangMen 上门护理排线验证服务
// 主程序入口

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/shangmen/shangmen/internal/cache"
	"github.com/shangmen/shangmen/internal/config"
	"github.com/shangmen/shangmen/internal/database"
	"github.com/shangmen/shangmen/internal/handler"
	"github.com/shangmen/shangmen/internal/metrics"
	"github.com/shangmen/shangmen/internal/repository"
	"github.com/shangmen/shangmen/pkg/logger"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 本地开发时从 .env 读取环境变量
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: "console",
	})

	fmt.Printf("ShangMen 上门护理排线验证服务 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	metrics.Register()

	// 可选的持久化与缓存
	var (
		db           *database.DB
		instanceRepo *repository.InstanceRepository
		runRepo      *repository.RunRepository
		resultCache  *cache.Cache
	)
	if cfg.Database.Enabled {
		db, err = database.New(&cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("数据库初始化失败")
		}
		defer db.Close()
		instanceRepo = repository.NewInstanceRepository(db)
		runRepo = repository.NewRunRepository(db)
	}
	if cfg.Redis.Enabled {
		resultCache, err = cache.New(&cfg.Redis, cfg.Validator.CacheTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Redis初始化失败")
		}
		defer resultCache.Close()
	}

	instanceHandler := handler.NewInstanceHandler(instanceRepo, cfg.Validator.MaxInstanceSize)
	solutionHandler := handler.NewSolutionHandler(runRepo, resultCache, cfg.Validator.MaxInstanceSize)

	mux := http.NewServeMux()

	// ========================================
	// 系统端点
	// ========================================

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded","service":"shangmen","database":"down"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"shangmen"}`))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s","build_time":"%s","git_commit":"%s"}`, Version, BuildTime, GitCommit)
	})

	// ========================================
	// API v1 端点
	// ========================================

	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"message": "ShangMen 验证服务 API v1",
			"endpoints": {
				"instance": {
					"validate": "POST /api/v1/instance/validate",
					"features": "POST /api/v1/instance/features",
					"get": "GET /api/v1/instance/get?signature=...",
					"list": "GET /api/v1/instance/list"
				},
				"solution": {
					"validate": "POST /api/v1/solution/validate",
					"cost": "POST /api/v1/solution/cost",
					"runs": "GET /api/v1/solution/runs?signature=..."
				}
			}
		}`))
	})

	// 实例校验 API
	mux.HandleFunc("/api/v1/instance/validate", instanceHandler.Validate)
	mux.HandleFunc("/api/v1/instance/features", instanceHandler.Features)
	mux.HandleFunc("/api/v1/instance/get", instanceHandler.Get)
	mux.HandleFunc("/api/v1/instance/list", instanceHandler.List)

	// 解验证与成本 API
	mux.HandleFunc("/api/v1/solution/validate", solutionHandler.Validate)
	mux.HandleFunc("/api/v1/solution/cost", solutionHandler.Cost)
	mux.HandleFunc("/api/v1/solution/runs", solutionHandler.Runs)

	// Prometheus 指标端点
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// 中间件执行顺序：requestID -> rateLimit -> logging -> handler
	root := requestIDMiddleware(rateLimitMiddleware(cfg.API.RateLimit, loggingMiddleware(mux)))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		os.Exit(1)
	}

	logger.Info().Msg("服务器已关闭")
}

// requestIDMiddleware 请求ID追踪中间件
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), "request_id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware 令牌桶限流中间件
func rateLimitMiddleware(perSecond int, next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(perSecond), perSecond*2)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"请求过于频繁"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware 日志与指标中间件
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID, _ := r.Context().Value("request_id").(string)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Msg("请求处理")

		metrics.RecordRequest(r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

// responseWriter 包装ResponseWriter以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
