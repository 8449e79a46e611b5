package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/internal/trace"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if err := trace.Init(cfg.Tracing.Enabled, cfg.Tracing.ServiceName); err != nil {
		log.Fatal().Err(err).Msg("tracing")
	}

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build")
	}

	handlers := &api{
		market:     a.Market,
		timeout:    time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
		currencies: cfg.Server.Currencies,
		width:      cfg.Server.SparklineWidth,
		height:     cfg.Server.SparklineHeight,
	}

	// promhttp negotiates its own compression, so /metrics stays outside withGzip.
	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/", handlers.routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      handlers.timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	if err := a.Close(); err != nil {
		log.Warn().Err(err).Msg("close stores")
	}
}
