package router

import (
	"net/http"
	"slices"
	"time"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/ashwinyue/rag-profiles/internal/handler"
	"github.com/ashwinyue/rag-profiles/internal/middleware"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	// 中间件
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handler.Fail(c, http.StatusNotFound, types.KindNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handler.Fail(c, http.StatusMethodNotAllowed, types.KindBadRequest, "method not allowed")
	})

	// 健康检查与指标
	r.GET("/health", h.System.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 模型
	r.GET("/models", h.Model.ListModels)

	// Profile
	maxUpload := int64(cfg.Server.MaxUploadMB) << 20
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	profiles := r.Group("/profiles", middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		profiles.GET("", h.Profile.ListProfiles)
		profiles.POST("", limitBody(maxUpload), h.Profile.CreateProfile)
		profiles.GET("/:name", h.Profile.GetProfile)
		profiles.POST("/:name/files", limitBody(maxUpload), h.Profile.UploadFiles)
		profiles.POST("/:name/query", limiter.Handler(), h.Profile.QueryProfile)
	}

	return r
}

// corsMiddleware 未配置来源或包含 "*" 时允许所有来源
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(c)
}

// limitBody 限制请求体大小，maxBytes 不大于 0 时不限制
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
