package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joshua-takyi/reviewtrust/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Values accepted by TRUSTED_PLATFORM.
const (
	PlatformCloudflare = "cloudflare"
	PlatformGoogle     = "google"
)

type Config struct {
	Port            string
	Environment     string
	LogLevel        string
	StoreDriver     string
	SupabaseURL     string
	SupabaseAnonKey string
	// SupabaseJWTSecret switches admin auth from JWKS to HS256 verification.
	SupabaseJWTSecret string
	MongoDBURI        string
	MongoDBPassword   string
	MongoDBDatabase   string
	RedisHost         string
	RedisPassword     string
	PublicBaseURL     string
	CORSOrigins       []string
	BusinessSeedFile  string
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed. Empty means the socket address is the client.
	TrustedProxies  []string
	TrustedPlatform string

	SMTP     SMTPConfig
	Pipeline PipelineConfig
	Outbox   OutboxConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Insecure allows opportunistic TLS for local relays such as MailHog.
	Insecure bool
}

type PipelineConfig struct {
	SpamPolicyFile        string
	DuplicateWindow       time.Duration
	IPDailyLimit          int64
	TokenTTL              time.Duration
	AlertAverageThreshold float64
	AlertMaxRating        int
	HTTPRateLimit         string
}

type OutboxConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8080"),
		Environment:       getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		StoreDriver:       strings.ToLower(getEnvWithDefault("STORE_DRIVER", DriverMongo)),
		SupabaseURL:       os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:   os.Getenv("SUPABASE_URL_ANON_KEY"),
		SupabaseJWTSecret: os.Getenv("SUPABASE_JWT_SECRET"),
		MongoDBURI:        os.Getenv("MONGODB_URI"),
		MongoDBPassword:   os.Getenv("MONGODB_PASSWORD"),
		MongoDBDatabase:   getEnvWithDefault("MONGODB_DATABASE", "reviewtrust"),
		RedisHost:         os.Getenv("REDIS_HOST"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		PublicBaseURL:     strings.TrimRight(getEnvWithDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CORSOrigins:       splitList(getEnvWithDefault("CORS_ORIGINS", "http://localhost:3000")),
		BusinessSeedFile:  os.Getenv("BUSINESS_SEED_FILE"),
		TrustedProxies:    splitList(os.Getenv("TRUSTED_PROXIES")),
		TrustedPlatform:   strings.ToLower(strings.TrimSpace(os.Getenv("TRUSTED_PLATFORM"))),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnvWithDefault("FROM_EMAIL", "noreply@reviewtrust.local"),
		},
		Pipeline: PipelineConfig{
			SpamPolicyFile: os.Getenv("SPAM_POLICY_FILE"),
			HTTPRateLimit:  getEnvWithDefault("HTTP_RATE_LIMIT", "30-M"),
		},
	}

	var err error
	if cfg.SMTP.Port, err = intEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.SMTP.Insecure, err = boolEnv("SMTP_INSECURE", false); err != nil {
		return nil, err
	}

	windowHours, err := intEnv("DUPLICATE_WINDOW_HOURS", 24)
	if err != nil {
		return nil, err
	}
	ttlHours, err := intEnv("TOKEN_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	ipLimit, err := intEnv("IP_DAILY_LIMIT", 3)
	if err != nil {
		return nil, err
	}
	cfg.Pipeline.DuplicateWindow = time.Duration(windowHours) * time.Hour
	cfg.Pipeline.TokenTTL = time.Duration(ttlHours) * time.Hour
	cfg.Pipeline.IPDailyLimit = int64(ipLimit)

	if cfg.Pipeline.AlertAverageThreshold, err = floatEnv("ALERT_AVERAGE_THRESHOLD", 4.0); err != nil {
		return nil, err
	}
	if cfg.Pipeline.AlertMaxRating, err = intEnv("ALERT_MAX_RATING", 3); err != nil {
		return nil, err
	}

	if cfg.Outbox.QueueSize, err = intEnv("OUTBOX_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.Outbox.Workers, err = intEnv("OUTBOX_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.Outbox.MaxAttempts, err = intEnv("OUTBOX_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	backoffMs, err := intEnv("OUTBOX_BACKOFF_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.Outbox.Backoff = time.Duration(backoffMs) * time.Millisecond

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required")
		}
		if c.SupabaseAnonKey == "" {
			return fmt.Errorf("SUPABASE_URL_ANON_KEY is required")
		}
		if c.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required")
		}
		if c.MongoDBPassword == "" {
			return fmt.Errorf("MONGODB_PASSWORD is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverMongo, DriverMemory, c.StoreDriver)
	}

	switch c.TrustedPlatform {
	case "", PlatformCloudflare, PlatformGoogle:
	default:
		return fmt.Errorf("TRUSTED_PLATFORM must be %q or %q, got %q", PlatformCloudflare, PlatformGoogle, c.TrustedPlatform)
	}

	if c.Pipeline.DuplicateWindow <= 0 {
		return fmt.Errorf("DUPLICATE_WINDOW_HOURS must be positive")
	}
	if c.Pipeline.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL_HOURS must be positive")
	}
	if c.Pipeline.IPDailyLimit <= 0 {
		return fmt.Errorf("IP_DAILY_LIMIT must be positive")
	}
	if c.Pipeline.AlertMaxRating < 1 || c.Pipeline.AlertMaxRating > 5 {
		return fmt.Errorf("ALERT_MAX_RATING must be between 1 and 5")
	}
	return nil
}

// LoadBusinessSeed reads the businesses served by the memory driver.
func LoadBusinessSeed(path string) ([]models.Business, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading business seed: %w", err)
	}
	var seed struct {
		Businesses []models.Business `yaml:"businesses"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing business seed %s: %w", path, err)
	}
	for i, b := range seed.Businesses {
		if b.ID == "" {
			return nil, fmt.Errorf("business seed entry %d has no id", i)
		}
	}
	return seed.Businesses, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func floatEnv(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
