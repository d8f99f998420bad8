// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/storyforge/go-storybook-backend/internal/blob"
	"github.com/storyforge/go-storybook-backend/internal/config"
	"github.com/storyforge/go-storybook-backend/internal/http/handlers"
	"github.com/storyforge/go-storybook-backend/internal/http/middleware"
	"github.com/storyforge/go-storybook-backend/internal/limits"
	"github.com/storyforge/go-storybook-backend/internal/pdf"
	"github.com/storyforge/go-storybook-backend/internal/providers"
	"github.com/storyforge/go-storybook-backend/internal/services"
	"github.com/storyforge/go-storybook-backend/internal/storage"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, store storage.StoryStore, text providers.TextGenerator, images providers.ImageGenerator, blobs blob.Store, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB) and response compression
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← store/providers/blobs
	storySvc := services.NewStoryService(store, text, cfg.Limits.MaxStoryPages)
	imageSvc := services.NewImageService(
		store,
		images,
		blobs,
		limits.New(cfg.Limits.ImageDailyLimit, cfg.Limits.ImageCooldown),
		providers.NewSessionStore(cfg.Limits.SessionTTL),
		cfg.Limits.ImageContextPages,
	)
	h := handlers.New(storySvc, imageSvc, pdf.NewExporter(blobs))

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Stories
		api.POST("/stories", h.CreateStory)
		api.GET("/stories", h.ListStories)
		api.GET("/stories/:id", h.GetStory)
		api.GET("/stories/:id/status", h.StoryStatus)
		api.PUT("/stories/:id", h.UpdateStory)
		api.DELETE("/stories/:id", h.DeleteStory)
		api.GET("/stories/:id/export/pdf", h.ExportPDF)

		// Pages
		api.PUT("/stories/:id/pages/:page", h.UpdatePage)
		api.POST("/stories/:id/pages/:page/regenerate", h.RegeneratePage)

		// Images
		api.POST("/stories/:id/pages/:page/image", h.StartImage)
		api.GET("/stories/:id/pages/:page/image-status", h.ImageStatus)
		api.POST("/stories/:id/pages/:page/image/regenerate", h.RegenerateImage)
		api.POST("/stories/:id/images", h.GenerateAllImages)

		// Stored images are served by the API itself on the local blob
		// backend; the S3 backend hands out presigned URLs instead.
		if cfg.Blob.Backend == config.BlobLocal {
			api.GET("/images/*key", serveImage(blobs))
		}
	}
}

// serveImage streams a stored illustration from the blob store.
func serveImage(blobs blob.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if len(key) > 0 && key[0] == '/' {
			key = key[1:]
		}

		rc, contentType, err := blobs.Open(c.Request.Context(), key)
		if errors.Is(err, blob.ErrNotFound) {
			handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "image not found")
			return
		}
		if err != nil {
			handlers.Fail(c, http.StatusInternalServerError, handlers.ErrCodeInternal, "image fetch failed")
			return
		}
		defer rc.Close()

		c.Header("Cache-Control", "public, max-age=86400")
		c.Header("Content-Type", contentType)
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, rc)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
