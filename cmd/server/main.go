package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payflow/config"
	"payflow/internal/database"
	"payflow/internal/router"
	"payflow/pkg/gateway"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gw := selectGateway(cfg, logger)

	engine := router.Setup(cfg, db, gw, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// selectGateway picks the gateway variant once at startup; business logic
// only ever sees the interface.
func selectGateway(cfg *config.Config, logger *zap.Logger) gateway.Gateway {
	if cfg.Gateway.Mock || cfg.Gateway.StripeAPIKey == "" {
		if !cfg.Gateway.Mock {
			logger.Warn("STRIPE_API_KEY not set, falling back to mock gateway")
		}
		logger.Info("using mock payment gateway")
		return gateway.NewMock()
	}
	logger.Info("using stripe payment gateway")
	return gateway.NewStripe(cfg.Gateway.StripeAPIKey)
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
