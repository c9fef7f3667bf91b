package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/model"
)

// PullWorker refreshes users and enrollments from the SIS on an interval.
type PullWorker struct {
	cfg    config.PullWorkerConfig
	syncer Syncer
	timer  *time.Timer
	log    zerolog.Logger
}

func NewPullWorker(cfg config.PullWorkerConfig, syncer Syncer) *PullWorker {
	return &PullWorker{
		cfg:    cfg,
		syncer: syncer,
		log:    logger.For("pull_worker"),
	}
}

func (w *PullWorker) Start(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Interval).Str("term", w.cfg.Term).Msg("Starting pull worker")

	if w.cfg.RunOnStart {
		w.log.Info().Msg("Running initial pull on startup")
		if err := w.PullAll(ctx); err != nil {
			w.log.Error().Err(err).Msg("Initial pull failed")
		}
	}

	w.timer = time.NewTimer(w.cfg.Interval)
	w.log.Info().Time("next_run", time.Now().Add(w.cfg.Interval)).Msg("Scheduled next pull")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Pull worker context cancelled")
			return ctx.Err()
		case <-w.timer.C:
			w.log.Info().Msg("Starting scheduled pull")
			if err := w.PullAll(ctx); err != nil {
				w.log.Error().Err(err).Msg("Scheduled pull failed")
			}
			w.log.Info().Time("next_run", time.Now().Add(w.cfg.Interval)).Msg("Scheduled next pull")
			w.timer.Reset(w.cfg.Interval)
		}
	}
}

func (w *PullWorker) Stop() {
	w.log.Info().Msg("Stopping pull worker")
	if w.timer != nil {
		w.timer.Stop()
	}
}

// PullAll syncs users first so enrollments can match them, then enrollments
// for the configured term.
func (w *PullWorker) PullAll(ctx context.Context) error {
	startTime := time.Now()

	resp, err := w.syncer.SyncData(ctx, auth.SystemActor, model.SyncRequest{
		SyncType:  model.SyncTypeAll,
		Direction: model.DirectionPull,
		Term:      w.cfg.Term,
	})

	ev := w.log.Info()
	if err != nil {
		ev = w.log.Error().Err(err)
	}
	ev = ev.Dur("duration", time.Since(startTime))
	if resp != nil {
		if u := resp.Results.Users; u != nil {
			ev = ev.Int("users_created", u.Created).Int("users_updated", u.Updated).Int("user_errors", len(u.Errors))
		}
		if e := resp.Results.Enrollments; e != nil {
			ev = ev.Int("enrolled", e.Enrolled).Int("enrol_updated", e.Updated).Int("enrol_errors", len(e.Errors))
		}
	}
	ev.Msg("Data pull completed")

	return err
}
