package composite

import (
	"context"
	"fmt"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

// GetGrades returns the composite report for a course after a grade:view
// check. userID narrows the report to one enrolled learner.
func (s *Service) GetGrades(ctx context.Context, actorID, courseID int64, userID *int64, includeBreakdown bool) (*model.GradeReport, error) {
	if err := s.authz.Require(ctx, actorID, courseID, auth.CapGradeView); err != nil {
		return nil, err
	}
	return s.Report(ctx, courseID, userID, includeBreakdown)
}

// Report reconstructs grades from the stored structure without a permission
// check. Callers are trusted: the SIS push and the export path.
func (s *Service) Report(ctx context.Context, courseID int64, userID *int64, includeBreakdown bool) (*model.GradeReport, error) {
	cfg, err := s.repo.FindActiveStructure(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("course %d: %w", courseID, errors.ErrNoActiveStructure)
	}

	learners, err := s.learners(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}

	main, err := s.repo.FindCategory(ctx, cfg.MainCategoryID)
	if err != nil {
		return nil, err
	}

	report := &model.GradeReport{
		CourseID:      courseID,
		StructureName: cfg.StructureName,
		Learners:      make([]model.LearnerGrades, 0, len(learners)),
	}

	for _, u := range learners {
		lg := model.LearnerGrades{
			UserID:    u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		}
		if main != nil {
			if lg.CompositeGrade, err = s.finalGrade(ctx, main.TotalItemID, u.ID); err != nil {
				return nil, err
			}
		}
		if includeBreakdown {
			if lg.Components, err = s.breakdown(ctx, cfg, u.ID); err != nil {
				return nil, err
			}
		}
		report.Learners = append(report.Learners, lg)
	}
	return report, nil
}

func (s *Service) learners(ctx context.Context, courseID int64, userID *int64) ([]model.User, error) {
	if userID == nil {
		return s.repo.ListEnrolledUsers(ctx, courseID)
	}
	enrolled, err := s.repo.IsEnrolled(ctx, courseID, *userID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, fmt.Errorf("user %d in course %d: %w", *userID, courseID, errors.ErrUserNotEnrolled)
	}
	u, err := s.repo.FindUser(ctx, *userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", *userID, errors.ErrUserNotEnrolled)
	}
	return []model.User{*u}, nil
}

// breakdown walks the stored structure. Components or items missing from the
// gradebook are left out of the report.
func (s *Service) breakdown(ctx context.Context, cfg *model.CompositeConfig, userID int64) ([]model.ComponentGrade, error) {
	out := make([]model.ComponentGrade, 0, len(cfg.Structure.Components))
	for _, comp := range cfg.Structure.Components {
		cat, err := s.repo.FindChildCategory(ctx, cfg.MainCategoryID, comp.Name)
		if err != nil {
			return nil, err
		}
		if cat == nil {
			continue
		}

		cg := model.ComponentGrade{
			Name:       comp.Name,
			Weight:     comp.Weight,
			CategoryID: cat.ID,
			Items:      []model.ItemGrade{},
		}
		if cg.Grade, err = s.finalGrade(ctx, cat.TotalItemID, userID); err != nil {
			return nil, err
		}

		for _, it := range comp.Items {
			item, err := s.repo.FindItemByName(ctx, cat.ID, it.Name)
			if err != nil {
				return nil, err
			}
			if item == nil {
				continue
			}
			ig := model.ItemGrade{ItemID: item.ID, Name: item.ItemName, MaxGrade: item.GradeMax}
			if ig.Grade, err = s.finalGrade(ctx, item.ID, userID); err != nil {
				return nil, err
			}
			if ig.Grade != nil && item.GradeMax > 0 {
				pct := *ig.Grade / item.GradeMax * 100
				ig.Percentage = &pct
			}
			cg.Items = append(cg.Items, ig)
		}
		out = append(out, cg)
	}
	return out, nil
}

func (s *Service) finalGrade(ctx context.Context, itemID, userID int64) (*float64, error) {
	if itemID == 0 {
		return nil, nil
	}
	g, err := s.repo.FindGrade(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, nil
	}
	return g.FinalGrade, nil
}
