// Package api is the HTTP surface: composite structures, grades, templates
// and SIS sync, all behind bearer-token authentication.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/storage"
	"ieap-grade-sync/pkg/errors"
)

type CompositeService interface {
	CreateStructure(ctx context.Context, actorID int64, req model.CreateStructureRequest) (*model.BuildResult, error)
	CreateFromTemplate(ctx context.Context, actorID, courseID int64, level model.Level, overrides map[string]float64) (*model.BuildResult, error)
	DeactivateStructure(ctx context.Context, actorID, courseID int64) error
	GetGrades(ctx context.Context, actorID, courseID int64, userID *int64, includeBreakdown bool) (*model.GradeReport, error)
	UpdateGrades(ctx context.Context, actorID int64, updates []model.GradeUpdate) ([]model.GradeUpdateResult, error)
	GetTemplates(ctx context.Context, actorID int64, level model.Level) (*model.TemplatesResponse, error)
	DetectLevel(ctx context.Context, actorID, courseID int64, courseName string) (*model.LevelDetection, error)
}

type SyncService interface {
	SyncData(ctx context.Context, actorID int64, req model.SyncRequest) (*model.SyncResponse, error)
	PushGrades(ctx context.Context, actorID, courseID int64, userID *int64) (*model.PushResult, error)
	PullEnrollments(ctx context.Context, actorID int64, term, courseCode string) (*model.PullEnrollmentsResult, error)
	ListLogs(ctx context.Context, actorID int64, filter db.SyncLogFilter) ([]model.SyncLog, error)
}

// JobQueue hands work to the ingestion and sync workers.
type JobQueue interface {
	EnqueueIngestionJob(ctx context.Context, job model.IngestionJob) error
	EnqueueSyncJob(ctx context.Context, job model.SyncJob) error
}

type Handler struct {
	cfg       *config.Config
	files     db.FileRepository
	authz     auth.Authorizer
	composite CompositeService
	sync      SyncService
	jobs      JobQueue
	storage   storage.Storage
	log       zerolog.Logger
}

func NewHandler(
	cfg *config.Config,
	files db.FileRepository,
	authz auth.Authorizer,
	composite CompositeService,
	sync SyncService,
	jobs JobQueue,
	blobs storage.Storage,
) *Handler {
	return &Handler{
		cfg:       cfg,
		files:     files,
		authz:     authz,
		composite: composite,
		sync:      sync,
		jobs:      jobs,
		storage:   blobs,
		log:       logger.For("api"),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     h.cfg.App.Name,
		"version":     h.cfg.App.Version,
		"sis_enabled": h.cfg.SIS.Enabled,
	})
}

// respondError maps domain errors onto HTTP statuses. Unknown errors are
// logged and reported as a bare 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Internal server error", "code": code})
		return
	}

	body := gin.H{"error": err.Error(), "code": code}
	var verrs errors.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]gin.H, 0, len(verrs))
		for _, v := range verrs {
			fields = append(fields, gin.H{"field": v.Field, "message": v.Message})
		}
		body["fields"] = fields
	}
	c.JSON(status, body)
}

func classify(err error) (int, string) {
	var (
		verr      errors.ValidationError
		verrs     errors.ValidationErrors
		transport *errors.TransportError
		httpErr   *errors.HTTPError
		decodeErr *errors.DecodeError
	)
	switch {
	case errors.Is(err, errors.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "authentication_failed"
	case errors.Is(err, errors.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, errors.ErrStructureExists):
		return http.StatusConflict, "structure_exists"
	case errors.Is(err, errors.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, errors.ErrMappingConflict):
		return http.StatusConflict, "mapping_conflict"
	case errors.Is(err, errors.ErrNoActiveStructure):
		return http.StatusNotFound, "no_active_structure"
	case errors.Is(err, errors.ErrUserNotEnrolled):
		return http.StatusNotFound, "user_not_enrolled"
	case errors.Is(err, errors.ErrFileNotFound), errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errors.ErrSISDisabled):
		return http.StatusServiceUnavailable, "sis_disabled"
	case errors.Is(err, errors.ErrUnknownLevel):
		return http.StatusBadRequest, "unknown_level"
	case errors.Is(err, errors.ErrInvalidGradeItem):
		return http.StatusBadRequest, "invalid_grade_item"
	case errors.Is(err, errors.ErrInvalidSyncType), errors.Is(err, errors.ErrInvalidDirection), errors.Is(err, errors.ErrCourseIDRequired):
		return http.StatusBadRequest, "invalid_sync_request"
	case errors.Is(err, errors.ErrInvalidFileFormat):
		return http.StatusBadRequest, "invalid_file_format"
	case errors.As(err, &verrs), errors.As(err, &verr), errors.Is(err, errors.ErrSchemaValidation), errors.Is(err, errors.ErrInvalidGradeValue):
		return http.StatusBadRequest, "validation_failed"
	case errors.As(err, &transport), errors.As(err, &httpErr), errors.As(err, &decodeErr):
		return http.StatusBadGateway, "sis_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}

func courseParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("course_id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid course ID")
		return 0, false
	}
	return id, true
}

// optionalInt64 reads an optional numeric query parameter.
func optionalInt64(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "Invalid "+name)
		return nil, false
	}
	return &v, true
}
