// Package sync moves data between the gradebook and the student information
// system: composite grades out, users and enrollments in. Every run holds a
// per-type lock and leaves exactly one audit row.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/mapping"
	"ieap-grade-sync/internal/metrics"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/observability"
	"ieap-grade-sync/internal/storage"
	"ieap-grade-sync/pkg/errors"
)

// ReportSource yields the composite grade report pushed to the SIS.
type ReportSource interface {
	Report(ctx context.Context, courseID int64, userID *int64, includeBreakdown bool) (*model.GradeReport, error)
}

type Service struct {
	sisCfg   config.SISConfig
	syncCfg  config.SyncConfig
	repo     db.Repository
	sis      SIS
	mappings *mapping.Store
	reports  ReportSource
	authz    auth.Authorizer
	locker   Locker
	archive  storage.Storage
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(cfg *config.Config, repo db.Repository, sis SIS, reports ReportSource, authz auth.Authorizer, locker Locker) *Service {
	return &Service{
		sisCfg:   cfg.SIS,
		syncCfg:  cfg.Sync,
		repo:     repo,
		sis:      sis,
		mappings: mapping.NewStore(repo),
		reports:  reports,
		authz:    authz,
		locker:   locker,
		log:      logger.For("sync"),
		now:      time.Now,
	}
}

// SetArchive enables payload archiving when sync.archive_payload is on.
func (s *Service) SetArchive(st storage.Storage) {
	s.archive = st
}

// outcome is what a run reports back for its audit row.
type outcome struct {
	processed int
	success   int
	failed    int
}

func (o outcome) status() model.SyncStatus {
	if o.failed > 0 {
		return model.SyncStatusPartial
	}
	return model.SyncStatusSuccess
}

// run wraps one sync operation: lock, running audit row, fn, then a single
// finalize of that row. An fn error is batch fatal and finalizes as failed
// with zero successes.
func (s *Service) run(ctx context.Context, syncType model.SyncType, direction model.Direction, courseID *int64, force bool, fn func(ctx context.Context) (outcome, error)) error {
	log := s.log.With().Str("sync_type", string(syncType)).Str("direction", string(direction)).Logger()

	release, err := s.locker.Acquire(ctx, string(syncType), force)
	if err != nil {
		log.Warn().Err(err).Msg("Sync lock not acquired")
		return err
	}
	defer release()

	entry := &model.SyncLog{
		SyncType:  syncType,
		CourseID:  courseID,
		Direction: direction,
		Status:    model.SyncStatusRunning,
	}
	if entry.ID, err = s.repo.InsertSyncLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to open sync log: %w", err)
	}

	started := s.now()
	log.Info().Int64("sync_log_id", entry.ID).Bool("force", force).Msg("Sync started")

	out, runErr := fn(ctx)
	entry.RecordsProcessed = out.processed
	entry.RecordsSuccess = out.success
	entry.RecordsFailed = out.failed
	entry.Status = out.status()
	if runErr != nil {
		msg := runErr.Error()
		entry.Status = model.SyncStatusFailed
		entry.RecordsSuccess = 0
		entry.ErrorMessage = &msg
	}

	// The caller's context may be cancelled by now; the row must still close.
	finCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.UpdateSyncLog(finCtx, entry); err != nil {
		log.Error().Err(err).Int64("sync_log_id", entry.ID).Msg("Failed to finalize sync log")
	}

	metrics.ObserveSync(string(syncType), string(entry.Status), entry.RecordsSuccess, entry.RecordsFailed, s.now().Sub(started))

	ev := log.Info()
	if runErr != nil {
		ev = log.Error().Err(runErr)
		observability.CaptureSyncFailure(string(syncType), runErr)
	}
	ev.Int64("sync_log_id", entry.ID).
		Str("status", string(entry.Status)).
		Int("processed", entry.RecordsProcessed).
		Int("success", entry.RecordsSuccess).
		Int("failed", entry.RecordsFailed).
		Msg("Sync finished")

	return runErr
}

func (s *Service) requireEnabled() error {
	if !s.sisCfg.Enabled {
		return errors.ErrSISDisabled
	}
	return nil
}

// SyncData dispatches a sync request. Precondition failures return a nil
// response. Once work has started, a failure returns the partial response
// with Success false alongside the error.
func (s *Service) SyncData(ctx context.Context, actorID int64, req model.SyncRequest) (*model.SyncResponse, error) {
	scope := auth.SystemCourse
	if req.CourseID != nil {
		scope = *req.CourseID
	}
	if err := s.authz.Require(ctx, actorID, scope, auth.CapSISSync); err != nil {
		return nil, err
	}
	if err := checkKind(req); err != nil {
		return nil, err
	}
	if err := s.requireEnabled(); err != nil {
		return nil, err
	}

	if needsCourse(req) {
		return nil, errors.ErrCourseIDRequired
	}

	resp := &model.SyncResponse{SyncType: req.SyncType, Direction: req.Direction}
	fail := func(err error) (*model.SyncResponse, error) {
		resp.Error = err.Error()
		return resp, err
	}

	for _, op := range Plan(req) {
		switch op.SyncType {
		case model.SyncTypeUsers:
			res, err := s.syncUsers(ctx, nil, req.Force)
			resp.Results.Users = res
			if err != nil {
				return fail(err)
			}
		case model.SyncTypeEnrollments:
			res, err := s.pullEnrollments(ctx, req.Term, "", req.Force)
			resp.Results.Enrollments = res
			if err != nil {
				return fail(err)
			}
		case model.SyncTypeGrades:
			res, err := s.pushGrades(ctx, *req.CourseID, req.UserID, req.Force)
			resp.Results.Grades = res
			if err != nil {
				return fail(err)
			}
		}
	}

	resp.Success = true
	return resp, nil
}

func checkKind(req model.SyncRequest) error {
	switch req.SyncType {
	case model.SyncTypeGrades, model.SyncTypeEnrollments, model.SyncTypeUsers, model.SyncTypeAll:
	default:
		return fmt.Errorf("%w: %q", errors.ErrInvalidSyncType, req.SyncType)
	}
	switch req.Direction {
	case model.DirectionPush, model.DirectionPull, model.DirectionBoth:
	default:
		return fmt.Errorf("%w: %q", errors.ErrInvalidDirection, req.Direction)
	}
	return nil
}

func needsCourse(req model.SyncRequest) bool {
	return req.SyncType == model.SyncTypeGrades && pushes(req.Direction) && req.CourseID == nil
}

// ValidateRequest applies the SyncData request checks that need no
// database or SIS access.
func ValidateRequest(req model.SyncRequest) error {
	if err := checkKind(req); err != nil {
		return err
	}
	if needsCourse(req) {
		return errors.ErrCourseIDRequired
	}
	return nil
}

// Operation is one step of a SyncData run.
type Operation struct {
	SyncType  model.SyncType
	Direction model.Direction
}

func pushes(d model.Direction) bool { return d == model.DirectionPush || d == model.DirectionBoth }
func pulls(d model.Direction) bool  { return d == model.DirectionPull || d == model.DirectionBoth }

// Plan lists the steps SyncData runs for req, in order: users, then
// enrollments, then grades. Grades are pushed only when a course is given.
func Plan(req model.SyncRequest) []Operation {
	var ops []Operation
	all := req.SyncType == model.SyncTypeAll
	if pulls(req.Direction) && (all || req.SyncType == model.SyncTypeUsers) {
		ops = append(ops, Operation{model.SyncTypeUsers, model.DirectionPull})
	}
	if pulls(req.Direction) && (all || req.SyncType == model.SyncTypeEnrollments) {
		ops = append(ops, Operation{model.SyncTypeEnrollments, model.DirectionPull})
	}
	if pushes(req.Direction) && req.CourseID != nil && (all || req.SyncType == model.SyncTypeGrades) {
		ops = append(ops, Operation{model.SyncTypeGrades, model.DirectionPush})
	}
	return ops
}

// ListLogs returns recent audit rows, newest first.
func (s *Service) ListLogs(ctx context.Context, actorID int64, filter db.SyncLogFilter) ([]model.SyncLog, error) {
	scope := auth.SystemCourse
	if filter.CourseID != nil {
		scope = *filter.CourseID
	}
	if err := s.authz.Require(ctx, actorID, scope, auth.CapSISSync); err != nil {
		return nil, err
	}
	return s.repo.ListSyncLogs(ctx, filter)
}
