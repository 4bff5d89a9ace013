package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	HTTPPort string `mapstructure:"HTTP_PORT"`
	GRPCPort string `mapstructure:"GRPC_PORT"`
	AppURL   string `mapstructure:"APP_URL"`

	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	// Пусто = счётчики лимитов живут в памяти процесса
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	SessionTTL      time.Duration `mapstructure:"SESSION_TTL"`
	ContentTokenTTL time.Duration `mapstructure:"CONTENT_TOKEN_TTL"`

	ContentRateLimitMax    int           `mapstructure:"CONTENT_RATE_LIMIT_MAX"`
	ContentRateLimitWindow time.Duration `mapstructure:"CONTENT_RATE_LIMIT_WINDOW"`
	LoginRateLimitMax      int           `mapstructure:"LOGIN_RATE_LIMIT_MAX"`
	LoginRateLimitWindow   time.Duration `mapstructure:"LOGIN_RATE_LIMIT_WINDOW"`

	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIURL        string `mapstructure:"STRIPE_API_URL"`

	PayPalClientID     string `mapstructure:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `mapstructure:"PAYPAL_CLIENT_SECRET"`
	PayPalMode         string `mapstructure:"PAYPAL_MODE"`
	PayPalWebhookID    string `mapstructure:"PAYPAL_WEBHOOK_ID"`

	ManualPaymentsEnabled bool `mapstructure:"MANUAL_PAYMENTS_ENABLED"`
}

var defaults = map[string]any{
	"APP_ENV":                   "production",
	"LOG_LEVEL":                 "info",
	"HTTP_PORT":                 ":8080",
	"GRPC_PORT":                 ":9090",
	"APP_URL":                   "http://localhost:3000",
	"ALLOWED_ORIGINS":           "http://localhost:3000",
	"DB_HOST":                   "localhost",
	"DB_PORT":                   "5432",
	"DB_SSLMODE":                "disable",
	"SESSION_TTL":               "24h",
	"CONTENT_TOKEN_TTL":         "1h",
	"CONTENT_RATE_LIMIT_MAX":    10,
	"CONTENT_RATE_LIMIT_WINDOW": "1m",
	"LOGIN_RATE_LIMIT_MAX":      5,
	"LOGIN_RATE_LIMIT_WINDOW":   "1m",
	"PROVIDER_TIMEOUT":          "10s",
	"STRIPE_API_URL":            "https://api.stripe.com",
	"PAYPAL_MODE":               "sandbox",
	"MANUAL_PAYMENTS_ENABLED":   false,
}

var envKeys = []string{
	"APP_ENV", "LOG_LEVEL", "HTTP_PORT", "GRPC_PORT", "APP_URL", "ALLOWED_ORIGINS",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"REDIS_ADDR",
	"JWT_SECRET", "SESSION_TTL", "CONTENT_TOKEN_TTL",
	"CONTENT_RATE_LIMIT_MAX", "CONTENT_RATE_LIMIT_WINDOW",
	"LOGIN_RATE_LIMIT_MAX", "LOGIN_RATE_LIMIT_WINDOW",
	"PROVIDER_TIMEOUT",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_API_URL",
	"PAYPAL_CLIENT_ID", "PAYPAL_CLIENT_SECRET", "PAYPAL_MODE", "PAYPAL_WEBHOOK_ID",
	"MANUAL_PAYMENTS_ENABLED",
}

// LoadConfig reads app.env from path when present and lets the environment
// override every key. Each call uses its own viper instance.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// Без явного BindEnv viper не видит переменные при отсутствии файла
	for _, key := range envKeys {
		if err = v.BindEnv(key); err != nil {
			return
		}
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.SessionTTL <= 0 || c.ContentTokenTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.ContentRateLimitMax <= 0 || c.ContentRateLimitWindow <= 0 {
		return errors.New("config: content rate limit must be positive")
	}
	if c.LoginRateLimitMax <= 0 || c.LoginRateLimitWindow <= 0 {
		return errors.New("config: login rate limit must be positive")
	}
	switch c.PayPalMode {
	case "sandbox", "live":
	default:
		return fmt.Errorf("config: unknown PAYPAL_MODE %q", c.PayPalMode)
	}
	return nil
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
