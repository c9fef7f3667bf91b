package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"ieap-grade-sync/internal/api"
	"ieap-grade-sync/internal/app"
	"ieap-grade-sync/internal/auth"
)

func main() {
	a, err := app.Init("api")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	defer a.Close()
	log := a.Log
	cfg := a.Cfg

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	if err := a.ConnectDB(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	if err := a.ConnectRedis(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	files, err := a.Storage()
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}

	authz := auth.NewChecker(a.Repo)
	grades := a.Composite(authz)
	syncService, err := a.Sync(authz, grades)
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(cfg, a.Repo, authz, grades, syncService, a.Producer(), files)
	router := api.NewRouter(handler, auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
