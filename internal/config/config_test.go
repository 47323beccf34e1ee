package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configKeys = []string{
	"PORT", "ENVIRONMENT", "LOG_LEVEL", "STORE_DRIVER", "SUPABASE_URL", "SUPABASE_URL_ANON_KEY",
	"SUPABASE_JWT_SECRET", "MONGODB_URI", "MONGODB_PASSWORD", "MONGODB_DATABASE", "REDIS_HOST",
	"REDIS_PASSWORD", "PUBLIC_BASE_URL", "CORS_ORIGINS", "BUSINESS_SEED_FILE", "SMTP_HOST", "SMTP_PORT",
	"SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_INSECURE", "FROM_EMAIL", "SPAM_POLICY_FILE",
	"DUPLICATE_WINDOW_HOURS", "TOKEN_TTL_HOURS", "IP_DAILY_LIMIT", "ALERT_AVERAGE_THRESHOLD",
	"ALERT_MAX_RATING", "HTTP_RATE_LIMIT", "OUTBOX_QUEUE_SIZE", "OUTBOX_WORKERS",
	"OUTBOX_MAX_ATTEMPTS", "OUTBOX_BACKOFF_MS", "TRUSTED_PROXIES", "TRUSTED_PLATFORM",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigMemoryDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, https://app.example ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreDriver != DriverMemory {
		t.Errorf("port=%s driver=%s", cfg.Port, cfg.StoreDriver)
	}
	if cfg.Pipeline.DuplicateWindow != 24*time.Hour || cfg.Pipeline.TokenTTL != 24*time.Hour {
		t.Errorf("window=%v ttl=%v", cfg.Pipeline.DuplicateWindow, cfg.Pipeline.TokenTTL)
	}
	if cfg.Pipeline.IPDailyLimit != 3 || cfg.Pipeline.AlertAverageThreshold != 4.0 || cfg.Pipeline.AlertMaxRating != 3 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://app.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.Outbox.Backoff != 500*time.Millisecond {
		t.Errorf("Outbox.Backoff = %v", cfg.Outbox.Backoff)
	}
	if len(cfg.TrustedProxies) != 0 || cfg.TrustedPlatform != "" {
		t.Errorf("trusted proxies = %v platform = %q, want none", cfg.TrustedProxies, cfg.TrustedPlatform)
	}
}

func TestLoadConfigTrustedProxies(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")
	t.Setenv("TRUSTED_PLATFORM", "Cloudflare")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("TrustedProxies = %v", cfg.TrustedProxies)
	}
	if cfg.TrustedPlatform != PlatformCloudflare {
		t.Errorf("TrustedPlatform = %q", cfg.TrustedPlatform)
	}
}

func TestLoadConfigMongoRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("SUPABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Error("expected an error without SUPABASE_URL")
	}

	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_URL_ANON_KEY", "anon")
	t.Setenv("MONGODB_URI", "mongodb+srv://u:<password>@cluster")
	t.Setenv("MONGODB_PASSWORD", "pw")
	if _, err := LoadConfig(); err != nil {
		t.Errorf("LoadConfig: %v", err)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := map[string][2]string{
		"unknown driver":   {"STORE_DRIVER", "cassandra"},
		"non numeric":      {"IP_DAILY_LIMIT", "lots"},
		"zero window":      {"DUPLICATE_WINDOW_HOURS", "0"},
		"rating too large": {"ALERT_MAX_RATING", "9"},
		"bad threshold":    {"ALERT_AVERAGE_THRESHOLD", "four"},
		"bad bool":         {"SMTP_INSECURE", "maybe"},
		"unknown platform": {"TRUSTED_PLATFORM", "heroku"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("STORE_DRIVER", "memory")
			t.Setenv(kv[0], kv[1])
			if _, err := LoadConfig(); err == nil {
				t.Errorf("%s=%s accepted", kv[0], kv[1])
			}
		})
	}
}

func TestLoadBusinessSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `businesses:
  - id: cafe-1
    name: Corner Cafe
    owner_id: user-1
    owner_email: owner@cafe.example
  - id: books-1
    name: Harbour Books
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	seed, err := LoadBusinessSeed(path)
	if err != nil {
		t.Fatalf("LoadBusinessSeed: %v", err)
	}
	if len(seed) != 2 || seed[0].OwnerEmail != "owner@cafe.example" || seed[1].Name != "Harbour Books" {
		t.Errorf("seed = %+v", seed)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("businesses:\n  - name: no id\n"), 0o600)
	if _, err := LoadBusinessSeed(bad); err == nil {
		t.Error("entry without id accepted")
	}
}
