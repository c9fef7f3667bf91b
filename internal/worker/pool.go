package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/logger"
)

type Job func(context.Context) error

// WorkerPool runs queued jobs on a fixed number of goroutines.
type WorkerPool struct {
	name        string
	workerCount int
	jobChan     chan Job
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewWorkerPool(name string, workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		name:        name,
		workerCount: workerCount,
		jobChan:     make(chan Job, workerCount*2),
		log:         logger.For("worker_pool").With().Str("pool", name).Logger(),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop drains the queue and waits for running jobs. Submit must not be
// called afterwards.
func (wp *WorkerPool) Stop() {
	wp.log.Info().Msg("Stopping worker pool")
	close(wp.jobChan)
	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

// Submit blocks until a worker slot frees up. A popped queue message is
// never dropped; back pressure stops the consumer instead.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case wp.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping due to context cancellation")
			return
		case job, ok := <-wp.jobChan:
			if !ok {
				log.Debug().Msg("Worker stopping due to closed job channel")
				return
			}
			if err := job(ctx); err != nil {
				log.Error().Err(err).Msg("Job execution failed")
			}
		}
	}
}
