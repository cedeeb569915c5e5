package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/souk-gate/internal/api"
	"github.com/nanjiek/souk-gate/internal/config"
	"github.com/nanjiek/souk-gate/internal/core"
	"github.com/nanjiek/souk-gate/internal/identity"
	"github.com/nanjiek/souk-gate/internal/limiter"
	"github.com/nanjiek/souk-gate/internal/origin"
	"github.com/nanjiek/souk-gate/internal/policy"
	"github.com/nanjiek/souk-gate/internal/repo"
)

func main() {
	// 解析命令行参数
	confPath := flag.String("c", "configs/gate.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 初始化策略注册表与来源白名单
	registry := policy.NewRegistry(cfg.BootstrapPolicies)
	origins := origin.Build(cfg.TrustedOrigins)
	slog.Info("admission config loaded",
		"policies", len(registry.All()),
		"origins", origins.Size(),
		"failPolicy", cfg.Features.FailPolicy)

	// 选择计数后端：配置了 Redis 则多实例共享配额，否则使用进程内存储
	var lim limiter.Limiter
	if cfg.Redis.Enabled() {
		rdb, err := repo.New(cfg.Redis, slog.Default())
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		lim = limiter.NewRedisFixedWindow(rdb, rdb)
	} else {
		store := limiter.NewMemoryStore()
		if cfg.Features.SweepEveryMs > 0 {
			store.StartJanitor(rootCtx, time.Duration(cfg.Features.SweepEveryMs)*time.Millisecond)
		}
		lim = limiter.NewFixedWindow(store)
	}

	// 初始化准入引擎
	engine := core.NewEngine(registry, lim, cfg.Features.FailPolicy)

	// 初始化HTTP服务（只负责注册路由）
	httpServer := api.NewServer(cfg.Server, registry, engine, identity.NewResolver(), origins)

	r := mux.NewRouter()
	httpServer.RegisterRoutes(r)

	// 原生 http.Server，方便优雅退出
	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.Printf("server is running on %s (PID: %d)", cfg.Server.HTTPAddr, os.Getpid())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")
	cancelRoot()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	log.Println("server exited properly")
}
