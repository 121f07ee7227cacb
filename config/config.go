package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Webhook  WebhookConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// GatewayConfig selects the payment gateway variant at deployment time.
// With Mock set (or no Stripe key configured) the service runs against the
// deterministic in-process gateway.
type GatewayConfig struct {
	Mock         bool
	StripeAPIKey string
	Timeout      time.Duration
}

type WebhookConfig struct {
	StripeSecret string
}

// AuthConfig enables bearer-token auth on the payments API when Secret is
// set. Webhooks are authenticated by gateway signature, never by token.
type AuthConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          getEnv("ENV", "development"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "payflow:payflow@tcp(localhost:3306)/payflow?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Gateway: GatewayConfig{
			Mock:         getBool("MOCK_GATEWAY", true),
			StripeAPIKey: os.Getenv("STRIPE_API_KEY"),
			Timeout:      getDuration("GATEWAY_TIMEOUT", 30*time.Second),
		},
		Webhook: WebhookConfig{
			StripeSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			Secret: os.Getenv("AUTH_JWT_SECRET"),
			Issuer: getEnv("AUTH_JWT_ISSUER", "payflow"),
			Expiry: getDuration("AUTH_JWT_EXPIRY", 15*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
