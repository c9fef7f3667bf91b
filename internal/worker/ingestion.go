package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/excel"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/metrics"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/queue"
	"ieap-grade-sync/internal/storage"
	"ieap-grade-sync/pkg/errors"
)

// GradeWriter applies a batch of item grades all or nothing.
type GradeWriter interface {
	UpdateGrades(ctx context.Context, actorID int64, updates []model.GradeUpdate) ([]model.GradeUpdateResult, error)
}

// IngestionWorker imports uploaded grade sheets into the gradebook.
type IngestionWorker struct {
	repo       db.Repository
	storage    storage.Storage
	grades     GradeWriter
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewIngestionWorker(
	cfg *config.Config,
	repo db.Repository,
	storage storage.Storage,
	grades GradeWriter,
	redisClient *queue.RedisClient,
) *IngestionWorker {
	return &IngestionWorker{
		repo:       repo,
		storage:    storage,
		grades:     grades,
		consumer:   queue.NewConsumer(redisClient, cfg.Redis),
		workerPool: NewWorkerPool("ingestion", cfg.Workers.Ingestion.Count),
		log:        logger.For("ingestion_worker"),
	}
}

func (w *IngestionWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting ingestion worker")
	w.workerPool.Start(ctx)
	return w.consumer.ConsumeIngestionQueue(ctx, w.handleMessage)
}

func (w *IngestionWorker) Stop() {
	w.log.Info().Msg("Stopping ingestion worker")
	w.workerPool.Stop()
}

func (w *IngestionWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.IngestionJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal ingestion job")
		return err
	}

	w.log.Info().Int64("file_id", job.FileID).Str("s3_path", job.S3Path).Msg("Processing ingestion job")

	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		return w.ProcessFile(ctx, job)
	})
}

// ProcessFile downloads, parses and imports one grade sheet. The file row
// ends IMPORTED when every row was written, FAILED otherwise; a sheet is
// never imported in part.
func (w *IngestionWorker) ProcessFile(ctx context.Context, job model.IngestionJob) error {
	log := w.log.With().Int64("file_id", job.FileID).Int64("course_id", job.CourseID).Logger()

	total := 0
	fail := func(stage string, err error) error {
		log.Error().Err(err).Str("stage", stage).Msg("Grade import failed")
		msg := err.Error()
		if statusErr := w.repo.UpdateFileStatus(ctx, job.FileID, model.FileStatusFailed, total, 0, &msg); statusErr != nil {
			log.Error().Err(statusErr).Msg("Failed to update file status")
		}
		return err
	}

	log.Debug().Msg("Downloading file from S3")
	reader, err := w.storage.Download(ctx, job.S3Path)
	if err != nil {
		return fail("download", err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return fail("download", err)
	}

	parser, err := excel.StrategyFor(job.S3Path)
	if err != nil {
		return fail("parse", err)
	}
	sheet, err := parser.Parse(ctx, data)
	if err != nil {
		return fail("parse", err)
	}
	total = len(sheet.Rows)

	if err := parser.Validate(ctx, sheet); err != nil {
		return fail("validate", err)
	}

	updates, err := w.resolve(ctx, job.CourseID, sheet)
	if err != nil {
		return fail("resolve", err)
	}

	results, err := w.grades.UpdateGrades(ctx, job.ActorID, updates)
	if err != nil {
		return fail("write", err)
	}
	metrics.GradesImported.Add(float64(len(results)))

	if err := w.repo.UpdateFileStatus(ctx, job.FileID, model.FileStatusImported, total, total, nil); err != nil {
		log.Error().Err(err).Msg("Failed to update file status")
		return err
	}

	log.Info().Int("rows", total).Int("grades", len(results)).Msg("File imported successfully")
	return nil
}

// resolve turns sheet columns into course items and emails into enrolled
// learners. Every problem is collected before giving up.
func (w *IngestionWorker) resolve(ctx context.Context, courseID int64, sheet *model.GradeSheet) ([]model.GradeUpdate, error) {
	var errs errors.ValidationErrors

	items := make(map[string]int64, len(sheet.Items))
	for _, name := range sheet.Items {
		item, err := w.repo.FindCourseItemByName(ctx, courseID, name)
		if err != nil {
			return nil, err
		}
		if item == nil {
			errs = append(errs, errors.ValidationError{Field: "header", Value: name, Message: "no such grade item in course", Err: errors.ErrInvalidGradeItem})
			continue
		}
		items[name] = item.ID
	}

	var updates []model.GradeUpdate
	for _, row := range sheet.Rows {
		field := fmt.Sprintf("row %d email", row.Row)
		user, err := w.repo.FindUserByEmail(ctx, row.Email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			errs = append(errs, errors.ValidationError{Field: field, Value: row.Email, Message: "unknown user", Err: errors.ErrNotFound})
			continue
		}
		enrolled, err := w.repo.IsEnrolled(ctx, courseID, user.ID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			errs = append(errs, errors.ValidationError{Field: field, Value: row.Email, Message: "not enrolled in course", Err: errors.ErrUserNotEnrolled})
			continue
		}
		for _, name := range sheet.Items {
			score, ok := row.Scores[name]
			itemID, known := items[name]
			if !ok || !known {
				continue
			}
			updates = append(updates, model.GradeUpdate{CourseID: courseID, UserID: user.ID, ItemID: itemID, Grade: score})
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return updates, nil
}
