// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the story store backend, blob storage,
// generation-provider credentials, image rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backend identifiers accepted by STORE_BACKEND.
const (
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Blob backend identifiers accepted by BLOB_BACKEND.
const (
	BlobS3    = "s3"
	BlobLocal = "local"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-storybook-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects and configures the story document store.
type StoreConfig struct {
	Backend      string // STORE_BACKEND: sqlite|dynamodb
	DBPath       string // SQLite path (sqlite backend)
	StoriesTable string // STORIES_TABLE (dynamodb backend)
	AWSRegion    string // AWS_REGION
	AWSEndpoint  string // AWS_ENDPOINT (optional, for DynamoDB Local)
}

// BlobConfig selects and configures the image blob store.
type BlobConfig struct {
	Backend       string        // BLOB_BACKEND: s3|local
	AssetsBucket  string        // STORY_ASSETS_BUCKET (s3 backend)
	AssetsDir     string        // ASSETS_DIR (local backend)
	SignedURLTTL  time.Duration // how long presigned GET URLs stay valid
	MaxImageBytes int           // upload size cap per image
}

// OpenAIConfig configures the text-generation provider.
type OpenAIConfig struct {
	APIKey  string        // OPENAI_API_KEY
	BaseURL string        // OPENAI_BASE_URL
	Model   string        // OPENAI_MODEL
	Timeout time.Duration // OPENAI_TIMEOUT
}

// GeminiConfig configures the image-generation provider.
type GeminiConfig struct {
	APIKey  string        // GEMINI_API_KEY
	BaseURL string        // GEMINI_BASE_URL
	Model   string        // GEMINI_MODEL
	Timeout time.Duration // GEMINI_TIMEOUT
}

// LimitsConfig configures the per-page image-generation limiter and the
// context carried between generations.
type LimitsConfig struct {
	ImageDailyLimit   int           // successful generations per page per UTC day
	ImageCooldown     time.Duration // minimum interval between successes per page
	ImageContextPages int           // prior pages included as conversation context
	SessionTTL        time.Duration // idle lifetime of a provider chat session
	MaxStoryPages     int           // upper bound on totalPages in a request
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 30s (PDF export can be slow)
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	Store  StoreConfig
	Blob   BlobConfig
	OpenAI OpenAIConfig
	Gemini GeminiConfig
	Limits LimitsConfig

	// Edge rate limiting (HTTP token bucket, distinct from Limits above)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Story store
		Store: StoreConfig{
			Backend:      strings.ToLower(getenv("STORE_BACKEND", StoreSQLite)),
			DBPath:       getenv("DB_PATH", "stories.db"),
			StoriesTable: getenv("STORIES_TABLE", ""),
			AWSRegion:    getenv("AWS_REGION", "us-east-1"),
			AWSEndpoint:  getenv("AWS_ENDPOINT", ""),
		},

		// Blob store
		Blob: BlobConfig{
			Backend:       strings.ToLower(getenv("BLOB_BACKEND", BlobLocal)),
			AssetsBucket:  getenv("STORY_ASSETS_BUCKET", ""),
			AssetsDir:     getenv("ASSETS_DIR", "generated-images"),
			SignedURLTTL:  getdur("SIGNED_URL_TTL", time.Hour),
			MaxImageBytes: getint("MAX_IMAGE_BYTES", 10<<20),
		},

		// Providers
		OpenAI: OpenAIConfig{
			APIKey:  getenv("OPENAI_API_KEY", ""),
			BaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:   getenv("OPENAI_MODEL", "gpt-5"),
			Timeout: getdur("OPENAI_TIMEOUT", 120*time.Second),
		},
		Gemini: GeminiConfig{
			APIKey:  getenv("GEMINI_API_KEY", ""),
			BaseURL: getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:   getenv("GEMINI_MODEL", "gemini-2.0-flash-preview-image-generation"),
			Timeout: getdur("GEMINI_TIMEOUT", 120*time.Second),
		},

		// Generation limits
		Limits: LimitsConfig{
			ImageDailyLimit:   getint("IMAGE_DAILY_LIMIT", 2),
			ImageCooldown:     getdur("IMAGE_COOLDOWN", 15*time.Minute),
			ImageContextPages: getint("IMAGE_CONTEXT_PAGES", 2),
			SessionTTL:        getdur("SESSION_TTL", 30*time.Minute),
			MaxStoryPages:     getint("MAX_STORY_PAGES", 20),
		},

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-storybook-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.Store.Backend {
	case StoreSQLite:
		if strings.TrimSpace(cfg.Store.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty for the sqlite backend")
		}
	case StoreDynamoDB:
		if strings.TrimSpace(cfg.Store.StoriesTable) == "" {
			return cfg, errors.New("STORIES_TABLE must be set for the dynamodb backend")
		}
	default:
		return cfg, errors.New("STORE_BACKEND must be one of: sqlite, dynamodb")
	}

	switch cfg.Blob.Backend {
	case BlobLocal:
		if strings.TrimSpace(cfg.Blob.AssetsDir) == "" {
			return cfg, errors.New("ASSETS_DIR must not be empty for the local blob backend")
		}
	case BlobS3:
		if strings.TrimSpace(cfg.Blob.AssetsBucket) == "" {
			return cfg, errors.New("STORY_ASSETS_BUCKET must be set for the s3 blob backend")
		}
	default:
		return cfg, errors.New("BLOB_BACKEND must be one of: s3, local")
	}
	if cfg.Blob.SignedURLTTL <= 0 {
		return cfg, errors.New("SIGNED_URL_TTL must be > 0")
	}
	if cfg.Blob.MaxImageBytes <= 0 {
		return cfg, errors.New("MAX_IMAGE_BYTES must be > 0")
	}

	if cfg.Limits.ImageDailyLimit < 1 {
		return cfg, errors.New("IMAGE_DAILY_LIMIT must be >= 1")
	}
	if cfg.Limits.ImageCooldown < 0 {
		return cfg, errors.New("IMAGE_COOLDOWN must be >= 0")
	}
	if cfg.Limits.ImageContextPages < 0 {
		return cfg, errors.New("IMAGE_CONTEXT_PAGES must be >= 0")
	}
	if cfg.Limits.SessionTTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.Limits.MaxStoryPages < 1 {
		return cfg, errors.New("MAX_STORY_PAGES must be >= 1")
	}

	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
