package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

func setup(t *testing.T) (*miniredis.Miniredis, *RedisClient, config.RedisConfig) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	cfg := config.RedisConfig{
		IngestionQueue: "grade_ingestion",
		SyncQueue:      "sis_sync",
		DLQSuffix:      ":dlq",
		EventChannel:   "composite_events",
	}
	return mr, rc, cfg
}

func TestProducerConsumer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	_, rc, cfg := setup(t)

	p := NewProducer(rc, cfg)
	require.NoError(t, p.EnqueueSyncJob(ctx, model.SyncJob{RequestID: "r1", ActorID: 4}))

	c := NewConsumer(rc, cfg)
	c.pollTimeout = 100 * time.Millisecond

	var got model.SyncJob
	c.next(ctx, cfg.SyncQueue, func(_ context.Context, data []byte) error {
		return json.Unmarshal(data, &got)
	})
	assert.Equal(t, "r1", got.RequestID)
	assert.Equal(t, int64(4), got.ActorID)
}

func TestConsumer_FailedMessageGoesToDLQ(t *testing.T) {
	ctx := context.Background()
	mr, rc, cfg := setup(t)

	p := NewProducer(rc, cfg)
	require.NoError(t, p.EnqueueIngestionJob(ctx, model.IngestionJob{FileID: 9}))

	c := NewConsumer(rc, cfg)
	c.pollTimeout = 100 * time.Millisecond
	c.next(ctx, cfg.IngestionQueue, func(context.Context, []byte) error { return errors.New("bad sheet") })

	dlq, err := mr.List("grade_ingestion:dlq")
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Contains(t, dlq[0], `"file_id":9`)
}

func TestConsume_StopsOnCancel(t *testing.T) {
	_, rc, cfg := setup(t)
	c := NewConsumer(rc, cfg)
	c.pollTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := c.ConsumeSyncQueue(ctx, func(context.Context, []byte) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProducer_PublishesStructureCreated(t *testing.T) {
	ctx := context.Background()
	_, rc, cfg := setup(t)

	sub := rc.Client().Subscribe(ctx, cfg.EventChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewProducer(rc, cfg)
	require.NoError(t, p.StructureCreated(ctx, model.StructureCreated{CourseID: 3, StructureName: "IEAP-1"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"event":"composite_structure_created"`)
	assert.Contains(t, msg.Payload, `"structure_name":"IEAP-1"`)
}
