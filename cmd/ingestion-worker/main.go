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
	a, err := app.Init("ingestion-worker")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	defer a.Close()
	log := a.Log

	log.Info().Str("version", a.Cfg.App.Version).Msg("Starting ingestion worker")

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

	// Grade writes are checked against the uploading actor.
	grades := a.Composite(auth.NewChecker(a.Repo))
	ingestionWorker := worker.NewIngestionWorker(a.Cfg, a.Repo, files, grades, a.Redis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := ingestionWorker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Ingestion worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down ingestion worker...")

	cancel()
	ingestionWorker.Stop()

	log.Info().Msg("Ingestion worker exited")
}
