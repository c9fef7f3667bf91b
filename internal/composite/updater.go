package composite

import (
	"context"
	"fmt"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

// UpdateGrades applies a batch of item grades. Permission is checked for
// every course up front, then all updates are written in one transaction:
// the first invalid item or value aborts the whole batch.
func (s *Service) UpdateGrades(ctx context.Context, actorID int64, updates []model.GradeUpdate) ([]model.GradeUpdateResult, error) {
	checked := make(map[int64]bool)
	for _, u := range updates {
		if checked[u.CourseID] {
			continue
		}
		if err := s.authz.Require(ctx, actorID, u.CourseID, auth.CapGradeEdit); err != nil {
			return nil, err
		}
		checked[u.CourseID] = true
	}

	results := make([]model.GradeUpdateResult, 0, len(updates))
	err := s.repo.WithTx(ctx, func(tx db.Repository) error {
		for i, u := range updates {
			item, err := tx.FindItem(ctx, u.ItemID)
			if err != nil {
				return err
			}
			if item == nil || item.CourseID != u.CourseID {
				return fmt.Errorf("update %d: item %d in course %d: %w", i, u.ItemID, u.CourseID, errors.ErrInvalidGradeItem)
			}
			if u.Grade < item.GradeMin || u.Grade > item.GradeMax {
				return errors.ValidationError{
					Field:   fmt.Sprintf("updates[%d].grade", i),
					Value:   u.Grade,
					Message: fmt.Sprintf("must be between %g and %g", item.GradeMin, item.GradeMax),
					Err:     errors.ErrInvalidGradeValue,
				}
			}
			value := u.Grade
			if err := tx.UpsertGrade(ctx, item.ID, u.UserID, &value); err != nil {
				return fmt.Errorf("failed to save grade for item %d: %w", item.ID, err)
			}
			results = append(results, model.GradeUpdateResult{GradeUpdate: u, Success: true})
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("actor_id", actorID).Int("updates", len(updates)).Msg("Grade update rejected")
		return nil, err
	}

	s.log.Info().Int64("actor_id", actorID).Int("updates", len(results)).Msg("Grades updated")
	return results, nil
}
