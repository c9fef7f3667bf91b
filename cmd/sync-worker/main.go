package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ieap-grade-sync/internal/app"
	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/worker"
)

func main() {
	a, err := app.Init("sync-worker")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	defer a.Close()
	log := a.Log

	log.Info().Str("version", a.Cfg.App.Version).Msg("Starting sync worker")

	if err := a.ConnectDB(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	if err := a.ConnectRedis(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}

	// Queued jobs carry the requesting actor, so permissions are checked
	// against the capability table as for inline requests.
	authz := auth.NewChecker(a.Repo)
	syncService, err := a.Sync(authz, a.Composite(authz))
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	syncWorker := worker.NewSyncWorker(a.Cfg, syncService, a.Redis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := syncWorker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Sync worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down sync worker...")

	cancel()
	syncWorker.Stop()

	log.Info().Msg("Sync worker exited")
}
