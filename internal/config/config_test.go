package config

import (
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED",
		"API_BASE_PATH", "STORE_BACKEND", "DB_PATH", "STORIES_TABLE", "AWS_REGION",
		"AWS_ENDPOINT", "BLOB_BACKEND", "STORY_ASSETS_BUCKET", "ASSETS_DIR",
		"SIGNED_URL_TTL", "MAX_IMAGE_BYTES", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"OPENAI_MODEL", "OPENAI_TIMEOUT", "GEMINI_API_KEY", "GEMINI_BASE_URL",
		"GEMINI_MODEL", "GEMINI_TIMEOUT", "IMAGE_DAILY_LIMIT", "IMAGE_COOLDOWN",
		"IMAGE_CONTEXT_PAGES", "SESSION_TTL", "MAX_STORY_PAGES", "RATE_RPS",
		"RATE_BURST", "CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q; want 8080", cfg.Port)
	}
	if cfg.Store.Backend != StoreSQLite {
		t.Errorf("Store.Backend = %q; want sqlite", cfg.Store.Backend)
	}
	if cfg.Blob.Backend != BlobLocal {
		t.Errorf("Blob.Backend = %q; want local", cfg.Blob.Backend)
	}
	if cfg.Limits.ImageDailyLimit != 2 {
		t.Errorf("ImageDailyLimit = %d; want 2", cfg.Limits.ImageDailyLimit)
	}
	if cfg.Limits.ImageCooldown != 15*time.Minute {
		t.Errorf("ImageCooldown = %v; want 15m", cfg.Limits.ImageCooldown)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q; want /api/v1", cfg.APIBasePath)
	}
}

func TestLoad_DynamoRequiresTable(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "dynamodb")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when STORIES_TABLE missing for dynamodb backend")
	}

	t.Setenv("STORIES_TABLE", "stories")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.StoriesTable != "stories" {
		t.Errorf("StoriesTable = %q", cfg.Store.StoriesTable)
	}
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv("BLOB_BACKEND", "s3")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when STORY_ASSETS_BUCKET missing for s3 backend")
	}

	t.Setenv("STORY_ASSETS_BUCKET", "story-assets")
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoad_InvalidBackends(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "etcd")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown STORE_BACKEND")
	}

	clearEnv(t)
	t.Setenv("BLOB_BACKEND", "gcs")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown BLOB_BACKEND")
	}
}

func TestLoad_NormalizesWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "WARNING")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want warn", cfg.LogLevel)
	}
}

func TestLoad_RejectsBadLimits(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAGE_DAILY_LIMIT", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for IMAGE_DAILY_LIMIT=0")
	}

	clearEnv(t)
	t.Setenv("RATE_BURST", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for RATE_BURST=0")
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"api":      "/api",
		"/api/":    "/api",
		"/api/v1/": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
