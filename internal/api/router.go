package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/linegate/internal/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Webhook     *WebhookHandler
	Integration *IntegrationHandler
	Health      *HealthHandler
	JWTSecret   string
	Logger      *zap.Logger
}

// NewRouter registers every route. Webhooks and health are public; the
// integration routes require a tenant-scoped JWT.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(cfg.Logger), middleware.Recovery(cfg.Logger))

	r.GET("/v1/health", cfg.Health.Health)
	r.POST("/webhooks/:platform", cfg.Webhook.Receive)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	line := v1.Group("/integrations/line")
	line.PUT("", cfg.Integration.Put)
	line.GET("", cfg.Integration.Get)
	line.DELETE("", cfg.Integration.Delete)
	line.POST("/test", cfg.Integration.Test)
	line.POST("/messages", cfg.Integration.SendMessage)

	return r
}
