package worker

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/queue"
)

// Syncer is the sync engine entry point a queued job runs through.
type Syncer interface {
	SyncData(ctx context.Context, actorID int64, req model.SyncRequest) (*model.SyncResponse, error)
}

// SyncWorker runs sync requests that the API queued instead of running inline.
type SyncWorker struct {
	syncer     Syncer
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewSyncWorker(cfg *config.Config, syncer Syncer, redisClient *queue.RedisClient) *SyncWorker {
	return &SyncWorker{
		syncer:     syncer,
		consumer:   queue.NewConsumer(redisClient, cfg.Redis),
		workerPool: NewWorkerPool("sync", cfg.Workers.Sync.Count),
		log:        logger.For("sync_worker"),
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting sync worker")
	w.workerPool.Start(ctx)
	return w.consumer.ConsumeSyncQueue(ctx, w.handleMessage)
}

func (w *SyncWorker) Stop() {
	w.log.Info().Msg("Stopping sync worker")
	w.workerPool.Stop()
}

func (w *SyncWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal sync job")
		return err
	}

	w.log.Info().
		Str("request_id", job.RequestID).
		Int64("actor_id", job.ActorID).
		Str("sync_type", string(job.Request.SyncType)).
		Str("direction", string(job.Request.Direction)).
		Msg("Processing sync job")

	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		return w.Run(ctx, job)
	})
}

// Run executes one queued job. The audit log carries the outcome; the
// returned error is only for the pool's log line.
func (w *SyncWorker) Run(ctx context.Context, job model.SyncJob) error {
	resp, err := w.syncer.SyncData(ctx, job.ActorID, job.Request)
	if err != nil {
		return err
	}
	w.log.Info().Str("request_id", job.RequestID).Bool("success", resp.Success).Msg("Sync job finished")
	return nil
}
