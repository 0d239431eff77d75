package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/ashwinyue/rag-profiles/internal/handler"
	"github.com/ashwinyue/rag-profiles/internal/logger"
	"github.com/ashwinyue/rag-profiles/internal/router"
	"github.com/ashwinyue/rag-profiles/internal/service"
	"github.com/ashwinyue/rag-profiles/internal/service/callback"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)
	callback.SetupGlobalCallbacks()

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	var opts []service.Option

	// 初始化 Redis（可选，仅用于模型列表缓存）
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.GetAddr()).Msg("redis unavailable, model cache disabled")
		} else {
			opts = append(opts, service.WithCache(redisClient))
		}
		cancel()
	}

	// 初始化服务并加载 Profile
	services, err := service.NewServices(context.Background(), cfg, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init services")
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close services")
		}
	}()

	log.Info().
		Str("file", services.Store.Path()).
		Int("profiles", len(services.Store.List())).
		Msg("profiles loaded")

	versionCtx, cancelVersion := context.WithTimeout(context.Background(), 3*time.Second)
	if v, err := services.Models.Version(versionCtx); err != nil {
		log.Warn().Err(err).Str("base_url", cfg.Ollama.BaseURL).Msg("ollama unreachable")
	} else {
		log.Info().Str("version", v).Msg("ollama connected")
	}
	cancelVersion()

	r := router.SetupRouter(handler.NewHandlers(services), cfg)

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 启动服务器
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server exited")
}
