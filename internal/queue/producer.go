package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/model"
)

type Producer struct {
	client *redis.Client
	cfg    config.RedisConfig
}

func NewProducer(redisClient *RedisClient, cfg config.RedisConfig) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

func (p *Producer) EnqueueIngestionJob(ctx context.Context, job model.IngestionJob) error {
	return p.push(ctx, p.cfg.IngestionQueue, job)
}

func (p *Producer) EnqueueSyncJob(ctx context.Context, job model.SyncJob) error {
	return p.push(ctx, p.cfg.SyncQueue, job)
}

func (p *Producer) push(ctx context.Context, queue string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := p.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue on %s: %w", queue, err)
	}
	return nil
}

// StructureCreated publishes the event on the composite events channel. It
// satisfies composite.EventSink.
func (p *Producer) StructureCreated(ctx context.Context, event model.StructureCreated) error {
	data, err := json.Marshal(struct {
		Event string `json:"event"`
		model.StructureCreated
	}{Event: "composite_structure_created", StructureCreated: event})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.cfg.EventChannel, data).Err()
}
