package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"medibook/internal/utils"
	"medibook/pkg/logger"
)

type Config struct {
	App      *AppConfig      `yaml:"app"`
	Database *DatabaseConfig `yaml:"database"`
	Redis    *RedisConfig    `yaml:"redis"`
	Payment  *PaymentConfig  `yaml:"payment"`
	Booking  *BookingConfig  `yaml:"booking"`
	Storage  *StorageConfig  `yaml:"storage"`
	Security *SecurityConfig `yaml:"security"`

	Notification *NotificationConfig `yaml:"notification"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	BaseURL     string `yaml:"base_url"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	Currency    string `yaml:"currency"`
}

type SecurityConfig struct {
	JWTSecret            string        `yaml:"jwt_secret"`
	JWTAccessTokenTTL    time.Duration `yaml:"jwt_access_token_ttl"`
	RateLimitPerMinute   int           `yaml:"rate_limit_per_minute"`
	WebhookRatePerSecond float64       `yaml:"webhook_rate_per_second"`
	WebhookBurst         int           `yaml:"webhook_burst"`
	CORSAllowedOrigins   []string      `yaml:"cors_allowed_origins"`
	TrustedProxies       []string      `yaml:"trusted_proxies"`
}

// StorageConfig selects the repository backend. "memory" keeps everything
// in process and is meant for local development.
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

func Load() (*Config, error) {
	config := &Config{
		App:      loadAppConfig(),
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		Payment:  loadPaymentConfig(),
		Booking:  loadBookingConfig(),
		Storage:  loadStorageConfig(),
		Security: loadSecurityConfig(),

		Notification: loadNotificationConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverMongoDB, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Booking.MaxRetries < 1 {
		return fmt.Errorf("BOOKING_MAX_RETRIES must be at least 1")
	}
	if !utils.ValidateCurrencyCode(c.App.Currency) {
		return fmt.Errorf("unsupported APP_CURRENCY %q", c.App.Currency)
	}
	if c.Payment.CashTolerance < 0 {
		return fmt.Errorf("PAYMENT_CASH_TOLERANCE must not be negative")
	}
	if IsProduction() && c.Security.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

const (
	StorageDriverMongoDB = "mongodb"
	StorageDriverMemory  = "memory"

	defaultJWTSecret = "change-me-jwt-secret"
)

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:        getEnv("APP_NAME", "medibook"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnvAsInt("APP_PORT", 8080),
		Host:        getEnv("APP_HOST", "0.0.0.0"),
		BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		Debug:       getEnvAsBool("APP_DEBUG", true),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		Currency:    strings.ToUpper(getEnv("APP_CURRENCY", "INR")),
	}
}

func loadStorageConfig() *StorageConfig {
	return &StorageConfig{
		Driver: getEnv("STORAGE_DRIVER", StorageDriverMongoDB),
	}
}

func loadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		JWTSecret:            getEnv("JWT_SECRET", defaultJWTSecret),
		JWTAccessTokenTTL:    getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
		RateLimitPerMinute:   getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		WebhookRatePerSecond: getEnvAsFloat64("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookBurst:         getEnvAsInt("WEBHOOK_BURST", 40),
		CORSAllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:       getEnvAsSlice("TRUSTED_PROXIES", []string{}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func IsProduction() bool {
	return getEnv("APP_ENV", "development") == "production"
}

func IsDevelopment() bool {
	return getEnv("APP_ENV", "development") == "development"
}

func (c *AppConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.LogLevel(c.LogLevel),
		Format:     c.LogFormat,
		Output:     "stdout",
		TimeFormat: time.RFC3339,
		AppName:    c.Name,
		Env:        c.Environment,
	}
}
