// Package config loads process configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/imrishuroy/doris-payments/internal/payuni"
)

// Config is every setting the api and worker binaries read.
type Config struct {
	MerchantID string `mapstructure:"PAYUNI_MERCHANT_ID"`
	HashKey    string `mapstructure:"PAYUNI_HASH_KEY"`
	HashIV     string `mapstructure:"PAYUNI_HASH_IV"`
	PayuniEnv  string `mapstructure:"PAYUNI_ENV"`
	GatewayURL string `mapstructure:"PAYUNI_GATEWAY_URL"`

	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	FrontendURL   string `mapstructure:"FRONTEND_URL"`
	OrderPrefix   string `mapstructure:"ORDER_PREFIX"`

	OrderStore     string `mapstructure:"ORDER_STORE"`
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseDSN    string `mapstructure:"DATABASE_DSN"`

	OrdersTable        string `mapstructure:"ORDERS_TABLE"`
	CoursesTable       string `mapstructure:"COURSES_TABLE"`
	EnrollmentsTable   string `mapstructure:"ENROLLMENTS_TABLE"`
	NotificationsTable string `mapstructure:"NOTIFICATIONS_TABLE"`
	EnrollmentQueueURL string `mapstructure:"ENROLLMENT_QUEUE_URL"`

	UploadBucket        string `mapstructure:"UPLOAD_BUCKET"`
	UploadPrefix        string `mapstructure:"UPLOAD_PREFIX"`
	UploadPublicBaseURL string `mapstructure:"UPLOAD_PUBLIC_BASE_URL"`
	AdminToken          string `mapstructure:"ADMIN_TOKEN"`

	MetricsNamespace string `mapstructure:"METRICS_NAMESPACE"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	RunLocal         bool   `mapstructure:"RUN_LOCAL"`
	HTTPAddr         string `mapstructure:"HTTP_ADDR"`
}

var keys = []string{
	"PAYUNI_MERCHANT_ID", "PAYUNI_HASH_KEY", "PAYUNI_HASH_IV", "PAYUNI_ENV", "PAYUNI_GATEWAY_URL",
	"PUBLIC_BASE_URL", "FRONTEND_URL", "ORDER_PREFIX",
	"ORDER_STORE", "DATABASE_DRIVER", "DATABASE_DSN",
	"ORDERS_TABLE", "COURSES_TABLE", "ENROLLMENTS_TABLE", "NOTIFICATIONS_TABLE", "ENROLLMENT_QUEUE_URL",
	"UPLOAD_BUCKET", "UPLOAD_PREFIX", "UPLOAD_PUBLIC_BASE_URL", "ADMIN_TOKEN",
	"METRICS_NAMESPACE", "LOG_LEVEL", "RUN_LOCAL", "HTTP_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PAYUNI_ENV", "sandbox")
	v.SetDefault("ORDER_PREFIX", "DORIS")
	v.SetDefault("ORDER_STORE", "dynamodb")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("ORDERS_TABLE", "orders")
	v.SetDefault("COURSES_TABLE", "courses")
	v.SetDefault("ENROLLMENTS_TABLE", "enrollments")
	v.SetDefault("NOTIFICATIONS_TABLE", "payment_notifications")
	v.SetDefault("UPLOAD_PREFIX", "uploads")
	v.SetDefault("METRICS_NAMESPACE", "Doris/Payments")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RUN_LOCAL", false)
	v.SetDefault("HTTP_ADDR", ":8080")
}

// Load reads envFile (if it exists) and then the process environment, which wins.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}

	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about; bind them so env-only values are picked up.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ValidateAPI checks everything the HTTP API needs.
func (c *Config) ValidateAPI() error {
	var errs []error
	if err := c.validatePayuni(); err != nil {
		errs = append(errs, err)
	}
	if c.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	}
	if c.FrontendURL == "" {
		errs = append(errs, errors.New("FRONTEND_URL is required"))
	}
	switch c.OrderStore {
	case "dynamodb":
	case "sql":
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required when ORDER_STORE=sql"))
		}
		if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "mysql" {
			errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or mysql, got %q", c.DatabaseDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("ORDER_STORE must be dynamodb or sql, got %q", c.OrderStore))
	}
	if c.UploadBucket != "" && c.UploadPublicBaseURL == "" {
		errs = append(errs, errors.New("UPLOAD_PUBLIC_BASE_URL is required when UPLOAD_BUCKET is set"))
	}
	return errors.Join(errs...)
}

func (c *Config) validatePayuni() error {
	var errs []error
	if c.MerchantID == "" {
		errs = append(errs, errors.New("PAYUNI_MERCHANT_ID is required"))
	}
	if len(c.HashKey) != payuni.KeySize {
		errs = append(errs, fmt.Errorf("PAYUNI_HASH_KEY must be %d bytes, got %d", payuni.KeySize, len(c.HashKey)))
	}
	if len(c.HashIV) != payuni.IVSize {
		errs = append(errs, fmt.Errorf("PAYUNI_HASH_IV must be %d bytes, got %d", payuni.IVSize, len(c.HashIV)))
	}
	env := strings.ToLower(c.PayuniEnv)
	if env != "sandbox" && env != "production" {
		errs = append(errs, fmt.Errorf("PAYUNI_ENV must be sandbox or production, got %q", c.PayuniEnv))
	}
	return errors.Join(errs...)
}

// Payuni returns the gateway client configuration.
func (c *Config) Payuni() payuni.Config {
	gateway := c.GatewayURL
	if gateway == "" {
		gateway = payuni.GatewayURLFor(c.PayuniEnv)
	}
	return payuni.Config{
		MerchantID: c.MerchantID,
		HashKey:    c.HashKey,
		HashIV:     c.HashIV,
		GatewayURL: gateway,
	}
}

// NotifyURL is where the gateway posts asynchronous results.
func (c *Config) NotifyURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/payments/notify"
}

// ReturnURL is where the gateway sends the browser after payment.
func (c *Config) ReturnURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/payments/return"
}

// BackURL is the storefront page for shoppers who abandon the payment page.
func (c *Config) BackURL() string {
	return strings.TrimRight(c.FrontendURL, "/") + "/cart"
}

// Logger builds the process JSON logger at LOG_LEVEL.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
