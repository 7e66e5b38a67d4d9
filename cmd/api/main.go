package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/moneychat-nlp/internal/api/handlers"
	"github.com/dvloznov/moneychat-nlp/internal/api/middleware"
	"github.com/dvloznov/moneychat-nlp/internal/app"
	"github.com/dvloznov/moneychat-nlp/internal/config"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Invalid configuration")
	}

	// Flags override the environment
	var (
		port    = flag.String("port", cfg.Port, "HTTP server port (or set PORT)")
		maxBody = flag.Int64("max-body", middleware.DefaultMaxBodyBytes, "Maximum request body size in bytes")
	)
	flag.Parse()

	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := logger.WithContext(context.Background(), log)

	provider, err := app.NewProvider(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction provider")
	}

	a, err := app.Build(ctx, cfg, provider)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer a.Close()

	h := handlers.New(a.Service, log)

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(log)(
				middleware.CORS(
					middleware.MaxBody(*maxBody)(h.Routes()),
				),
			),
		),
	)

	// WriteTimeout must outlast the upstream timeout.
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", *port).
			Str("provider", cfg.Provider).
			Str("timezone", cfg.Timezone).
			Str("batch_policy", cfg.BatchPolicy.String()).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
