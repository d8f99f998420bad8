// Command server runs the storybook backend: a Gin HTTP API that generates
// children's stories with a text provider, illustrates their pages with an
// image provider, and persists the results in a pluggable document store.
//
// Configuration is environment-driven (see internal/config). A .env file is
// loaded when present to ease local development.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/storyforge/go-storybook-backend/docs"
	"github.com/storyforge/go-storybook-backend/internal/blob"
	"github.com/storyforge/go-storybook-backend/internal/config"
	httpapi "github.com/storyforge/go-storybook-backend/internal/http"
	"github.com/storyforge/go-storybook-backend/internal/observability"
	"github.com/storyforge/go-storybook-backend/internal/providers"
	"github.com/storyforge/go-storybook-backend/internal/storage"
	"github.com/storyforge/go-storybook-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// @title        Storybook Backend API
// @version      1.0
// @description  Generates illustrated children's storybooks: story text via an LLM, page images via an image model, PDF export.
// @BasePath     /api/v1
func main() {
	// Load .env if present (no-op in production images).
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Structured logging.
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing.
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	// Persistence.
	store, err := storage.NewStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	blobs, err := blob.NewStore(cfg.Blob, cfg.Store.AWSRegion, cfg.Store.AWSEndpoint, cfg.APIBasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store init failed")
	}

	// Providers.
	text := providers.NewOpenAIClient(cfg.OpenAI)
	images := providers.NewGeminiClient(cfg.Gemini)

	// HTTP transport.
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	r := gin.New()
	httpapi.RegisterRoutes(r, store, text, images, blobs, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
