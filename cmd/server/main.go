// Package main is the entry point for the portfolio polling service.
// It keeps one brokerage account's balance and performance figures fresh
// and exposes them over HTTP as sensor values.
//
// Startup order:
//  1. Configuration from environment (.env) and the settings database
//  2. Dependency wiring (database, token store, token manager, engine, jobs)
//  3. HTTP server
//  4. Scheduler and the initial poll
//  5. Graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/saxo-portfolio/internal/config"
	"github.com/aristath/saxo-portfolio/internal/di"
	"github.com/aristath/saxo-portfolio/internal/server"
	"github.com/aristath/saxo-portfolio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Msg("Starting portfolio service")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Credentials and timezone saved through the settings API take precedence
	// over the environment
	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to update config from settings DB, using environment variables")
	}

	refresher := di.NewCredentialRefresher(container, cfg, log)
	if err := refresher.RefreshCredentials(); err != nil {
		log.Warn().Err(err).Msg("Failed to load credentials from settings")
	}
	if err := container.Coordinator.SetTimezone(cfg.Timezone); err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("Failed to apply timezone from settings")
	}
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		log.Warn().Msg("Application credentials not configured - set them via PUT /api/settings/{key}")
	}

	nextPoll := func() (time.Time, bool) {
		return container.Scheduler.Next(di.PollJobName)
	}

	srv := server.New(server.Config{
		Log:                 log,
		Port:                cfg.Port,
		Coordinator:         container.Coordinator,
		Tokens:              container.TokenManager,
		Exchanger:           container.Exchanger,
		Limiter:             container.Limiter,
		Database:            container.DB,
		NextPoll:            nextPoll,
		EventManager:        container.EventManager,
		SettingsService:     container.SettingsService,
		CredentialRefresher: refresher,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()
	go di.RunInitialPoll(container, log)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
