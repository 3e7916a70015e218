// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App         AppConfig         `koanf:"app"`
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	JWT         JWTConfig         `koanf:"jwt"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	CORS        CORSConfig        `koanf:"cors"`
	Log         LogConfig         `koanf:"log"`
	Otel        OtelConfig        `koanf:"otel"`
	Quota       QuotaConfig       `koanf:"quota"`
	Payment     PaymentConfig     `koanf:"payment"`
	ImageSearch ImageSearchConfig `koanf:"image_search"`
	Storage     StorageConfig     `koanf:"storage"`
	Admin       AdminConfig       `koanf:"admin"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

type JWTConfig struct {
	PrivateKeyPath    string        `koanf:"private_key_path"`
	PublicKeyPath     string        `koanf:"public_key_path"`
	AccessTokenExpire time.Duration `koanf:"access_token_expire"`
	Issuer            string        `koanf:"issuer"`
	Audience          string        `koanf:"audience"`
}

type RateLimitConfig struct {
	Requests         int           `koanf:"requests"`
	Window           time.Duration `koanf:"window"`
	Burst            int           `koanf:"burst"`
	FeaturePerMinute int           `koanf:"feature_per_minute"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// QuotaConfig holds the free usage allowance. FreeUses is an exclusive
// upper bound on the ledger count: exactly FreeUses uses are permitted.
type QuotaConfig struct {
	FreeUses int `koanf:"free_uses"`
}

type PaymentConfig struct {
	StripeSecretKey string        `koanf:"stripe_secret_key"`
	WebhookSecret   string        `koanf:"webhook_secret"`
	StripeAPIURL    string        `koanf:"stripe_api_url"`
	AmountCents     int64         `koanf:"amount_cents"`
	Currency        string        `koanf:"currency"`
	ProductName     string        `koanf:"product_name"`
	PublicBaseURL   string        `koanf:"public_base_url"`
	Timeout         time.Duration `koanf:"timeout"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	StaleAfter      time.Duration `koanf:"stale_after"`
}

type ImageSearchConfig struct {
	AccessKey string        `koanf:"access_key"`
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	MaxBytes  int64         `koanf:"max_bytes"`
}

type StorageConfig struct {
	Backend         string `koanf:"backend"`
	Dir             string `koanf:"dir"`
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	EndpointURL     string `koanf:"endpoint_url"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	MaxWidth        int    `koanf:"max_width"`
}

type AdminConfig struct {
	Token string `koanf:"token"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "imagegate",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.driver":             "pgx",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.access_token_expire": "12h",
		"jwt.issuer":              "imagegate",
		"jwt.audience":            "imagegate-api",
		"jwt.private_key_path":    "keys/private.pem",
		"jwt.public_key_path":     "keys/public.pem",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"rate_limit.feature_per_minute": 30,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "imagegate",

		"quota.free_uses": 5,

		"payment.amount_cents":    200,
		"payment.currency":        "usd",
		"payment.product_name":    "Premium Access",
		"payment.public_base_url": "http://localhost:8080",
		"payment.timeout":         "15s",
		"payment.sweep_interval":  "10m",
		"payment.stale_after":     "24h",

		"image_search.base_url":  "https://api.unsplash.com",
		"image_search.timeout":   "10s",
		"image_search.max_bytes": 10 << 20,

		"storage.backend":   "local",
		"storage.dir":       "downloaded_images",
		"storage.region":    "us-east-1",
		"storage.max_width": 1600,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_DRIVER":             "database.driver",
	"DATABASE_URL":                "database.url",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"RATE_LIMIT_FEATURE":          "rate_limit.feature_per_minute",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"FREE_QUOTA":                  "quota.free_uses",
	"STRIPE_SECRET_KEY":           "payment.stripe_secret_key",
	"STRIPE_WEBHOOK_SECRET":       "payment.webhook_secret",
	"STRIPE_API_URL":              "payment.stripe_api_url",
	"PAYMENT_AMOUNT_CENTS":        "payment.amount_cents",
	"PAYMENT_CURRENCY":            "payment.currency",
	"PUBLIC_BASE_URL":             "payment.public_base_url",
	"PAYMENT_TIMEOUT":             "payment.timeout",
	"CHECKOUT_SWEEP_INTERVAL":     "payment.sweep_interval",
	"CHECKOUT_STALE_AFTER":        "payment.stale_after",
	"UNSPLASH_API_KEY":            "image_search.access_key",
	"UNSPLASH_BASE_URL":           "image_search.base_url",
	"IMAGE_SEARCH_TIMEOUT":        "image_search.timeout",
	"STORAGE_BACKEND":             "storage.backend",
	"STORAGE_DIR":                 "storage.dir",
	"S3_BUCKET":                   "storage.bucket",
	"S3_REGION":                   "storage.region",
	"S3_ENDPOINT_URL":             "storage.endpoint_url",
	"S3_ACCESS_KEY_ID":            "storage.access_key_id",
	"S3_SECRET_ACCESS_KEY":        "storage.secret_access_key",
	"ADMIN_TOKEN":                 "admin.token",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != "pgx" && c.Database.Driver != "sqlite3" {
		return fmt.Errorf("database.driver must be pgx or sqlite3")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required")
	}

	if c.JWT.PublicKeyPath == "" {
		return fmt.Errorf("JWT_PUBLIC_KEY_PATH is required")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
		if c.Payment.WebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if c.Quota.FreeUses < 0 {
		return fmt.Errorf("quota.free_uses must not be negative")
	}

	if c.Payment.AmountCents <= 0 {
		return fmt.Errorf("payment.amount_cents must be positive")
	}

	if c.Payment.Timeout <= 0 || c.ImageSearch.Timeout <= 0 {
		return fmt.Errorf("external call timeouts must be positive")
	}

	if c.Storage.Backend != "local" && c.Storage.Backend != "s3" {
		return fmt.Errorf("storage.backend must be local or s3")
	}

	if c.Storage.Backend == "s3" && c.Storage.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
