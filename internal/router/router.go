package router

import (
	"net/http"

	"payflow/config"
	"payflow/internal/handler"
	"payflow/internal/middleware"
	"payflow/internal/repository"
	"payflow/internal/service"
	"payflow/pkg/gateway"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, gw gateway.Gateway, log *zap.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	paymentRepo := repository.NewPaymentRepository(db)
	paymentSvc := service.NewPaymentService(paymentRepo, gw, cfg.Gateway.Timeout, log)

	paymentHandler := handler.NewPaymentHandler(paymentSvc, log)
	webhookHandler := handler.NewWebhookHandler(paymentSvc, cfg.Webhook.StripeSecret, log)

	payments := r.Group("/payments")
	if cfg.Auth.Secret != "" {
		payments.Use(middleware.AuthRequired(&cfg.Auth))
	}
	{
		payments.POST("", paymentHandler.Create)
		payments.GET("", paymentHandler.List)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("/:id/confirm", paymentHandler.Confirm)
		payments.POST("/:id/refund", paymentHandler.Refund)
	}

	// Gateway callbacks authenticate via signature, never via bearer token.
	r.POST("/webhooks", webhookHandler.Handle)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
