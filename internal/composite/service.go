// Package composite builds weighted IEAP grading structures inside a course
// gradebook and reads or edits the grades they hold.
package composite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/ieap"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/metrics"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

// EventSink receives StructureCreated after commit. Its failures are logged
// and never undo the structure.
type EventSink interface {
	StructureCreated(ctx context.Context, event model.StructureCreated) error
}

type Service struct {
	repo   db.Repository
	authz  auth.Authorizer
	events EventSink
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo db.Repository, authz auth.Authorizer, events EventSink) *Service {
	log := logger.For("composite")
	if events == nil {
		events = NewLogSink(log)
	}
	return &Service{
		repo:   repo,
		authz:  authz,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// CreateStructure materializes a structure in the course gradebook. Checks
// run in order: permission, template resolution, validation, existing
// structure. The build itself is one transaction.
func (s *Service) CreateStructure(ctx context.Context, actorID int64, req model.CreateStructureRequest) (*model.BuildResult, error) {
	log := s.log.With().Int64("course_id", req.CourseID).Int64("actor_id", actorID).Logger()

	if err := s.authz.Require(ctx, actorID, req.CourseID, auth.CapGradeManage); err != nil {
		return nil, err
	}

	structure, err := s.resolveStructure(ctx, req)
	if err != nil {
		return nil, err
	}

	if errs := ieap.Validate(structure); len(errs) > 0 {
		log.Warn().Str("errors", errs.Error()).Msg("Rejected invalid structure")
		return nil, errs
	}

	existing, err := s.repo.FindActiveStructure(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.ErrStructureExists
	}

	var result *model.BuildResult
	err = s.repo.WithTx(ctx, func(tx db.Repository) error {
		var buildErr error
		result, buildErr = build(ctx, tx, req.CourseID, actorID, structure)
		return buildErr
	})
	if err != nil {
		if errors.Is(err, errors.ErrStructureExists) {
			return nil, err
		}
		log.Error().Err(err).Msg("Failed to create composite structure")
		return nil, &errors.StructureCreationError{Err: err}
	}

	log.Info().
		Int64("main_category_id", result.MainCategoryID).
		Str("structure", structure.Name).
		Int("components", len(result.Components)).
		Msg("Composite structure created")
	metrics.StructuresCreated.Inc()

	event := model.StructureCreated{
		CourseID:       req.CourseID,
		MainCategoryID: result.MainCategoryID,
		StructureName:  structure.Name,
		ActorID:        actorID,
		CreatedAt:      s.now(),
	}
	if err := s.events.StructureCreated(ctx, event); err != nil {
		log.Warn().Err(err).Msg("Failed to emit structure created event")
	}

	return result, nil
}

// CreateFromTemplate builds a level's template after weight overrides.
func (s *Service) CreateFromTemplate(ctx context.Context, actorID, courseID int64, level model.Level, overrides map[string]float64) (*model.BuildResult, error) {
	if err := s.authz.Require(ctx, actorID, courseID, auth.CapGradeManage); err != nil {
		return nil, err
	}
	structure, err := ieap.Customize(level, overrides)
	if err != nil {
		return nil, err
	}
	return s.CreateStructure(ctx, actorID, model.CreateStructureRequest{
		CourseID:  courseID,
		Structure: &structure,
	})
}

// DeactivateStructure retires the active structure so a new one can be
// created. The gradebook categories are left in place.
func (s *Service) DeactivateStructure(ctx context.Context, actorID, courseID int64) error {
	if err := s.authz.Require(ctx, actorID, courseID, auth.CapGradeManage); err != nil {
		return err
	}
	changed, err := s.repo.DeactivateStructure(ctx, courseID)
	if err != nil {
		return err
	}
	if !changed {
		return errors.ErrNoActiveStructure
	}
	s.log.Info().Int64("course_id", courseID).Int64("actor_id", actorID).Msg("Composite structure deactivated")
	return nil
}

func (s *Service) resolveStructure(ctx context.Context, req model.CreateStructureRequest) (model.Structure, error) {
	level := req.Level
	if level == "" && req.AutoDetect {
		course, err := s.repo.FindCourse(ctx, req.CourseID)
		if err != nil {
			return model.Structure{}, err
		}
		if course == nil {
			return model.Structure{}, fmt.Errorf("course %d: %w", req.CourseID, errors.ErrNotFound)
		}
		if detected, ok := ieap.DetectLevel(course.ShortName + " " + course.FullName); ok {
			s.log.Debug().Int64("course_id", req.CourseID).Str("level", string(detected)).Msg("Detected IEAP level")
			level = detected
		}
	}

	if level != "" {
		return ieap.Get(level)
	}
	if req.Structure == nil {
		return model.Structure{}, errors.ValidationErrors{{
			Field:   "structure",
			Message: "structure or ieap_level is required",
			Err:     errors.ErrSchemaValidation,
		}}
	}
	return req.Structure.Clone(), nil
}

type logSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) EventSink {
	return logSink{log: log}
}

func (l logSink) StructureCreated(_ context.Context, e model.StructureCreated) error {
	l.log.Info().
		Str("event", "composite_structure_created").
		Int64("course_id", e.CourseID).
		Int64("main_category_id", e.MainCategoryID).
		Str("structure", e.StructureName).
		Int64("actor_id", e.ActorID).
		Msg("Event")
	return nil
}
