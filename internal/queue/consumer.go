package queue

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/logger"
)

type Consumer struct {
	client      *redis.Client
	cfg         config.RedisConfig
	pollTimeout time.Duration
	log         zerolog.Logger
}

type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(redisClient *RedisClient, cfg config.RedisConfig) *Consumer {
	return &Consumer{
		client:      redisClient.Client(),
		cfg:         cfg,
		pollTimeout: 5 * time.Second,
		log:         logger.For("queue"),
	}
}

func (c *Consumer) ConsumeIngestionQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.IngestionQueue, handler)
}

func (c *Consumer) ConsumeSyncQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.SyncQueue, handler)
}

func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			c.next(ctx, queueName, handler)
		}
	}
}

// next pops at most one message. Handler failures park the raw message on
// the queue's dead-letter list.
func (c *Consumer) next(ctx context.Context, queueName string, handler MessageHandler) {
	result, err := c.client.BRPop(ctx, c.pollTimeout, queueName).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to consume message")
			time.Sleep(time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	message := result[1]
	if err := handler(ctx, []byte(message)); err != nil {
		c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to process message")
		dlqName := queueName + c.cfg.DLQSuffix
		if dlqErr := c.client.LPush(ctx, dlqName, message).Err(); dlqErr != nil {
			c.log.Error().Err(dlqErr).Str("dlq", dlqName).Msg("Failed to move message to DLQ")
		}
	}
}
