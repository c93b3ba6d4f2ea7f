package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	MerchantSecret string
	Limiter        *RateLimiter
}

func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Logger(logger))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	public := r.Group("/")
	if cfg.Limiter != nil {
		public.Use(cfg.Limiter.Middleware())
	}

	create := []gin.HandlerFunc{h.CreateOrder}
	if cfg.MerchantSecret != "" {
		create = append([]gin.HandlerFunc{RequireMerchant(cfg.MerchantSecret)}, create...)
	}
	public.POST("/CreateOrder", create...)
	public.GET("/Pay/:id", h.Pay)
	public.GET("/Check/:id", h.Check)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
