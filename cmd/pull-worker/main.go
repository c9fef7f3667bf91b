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
	a, err := app.Init("pull-worker")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	defer a.Close()
	log := a.Log

	log.Info().Str("version", a.Cfg.App.Version).Msg("Starting pull worker")

	if err := a.ConnectDB(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	if err := a.ConnectRedis(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}

	// Scheduled pulls run as the system actor.
	authz := auth.Unrestricted()
	syncService, err := a.Sync(authz, a.Composite(authz))
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	pullWorker := worker.NewPullWorker(a.Cfg.Workers.Pull, syncService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pullWorker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Pull worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down pull worker...")

	cancel()
	pullWorker.Stop()

	log.Info().Msg("Pull worker exited")
}
