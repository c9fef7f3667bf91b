package composite

import (
	"context"
	"fmt"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/ieap"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

// GetTemplates lists the catalog, or a single level when one is given.
func (s *Service) GetTemplates(ctx context.Context, actorID int64, level model.Level) (*model.TemplatesResponse, error) {
	if err := s.authz.Require(ctx, actorID, auth.SystemCourse, auth.CapCompositeView); err != nil {
		return nil, err
	}

	resp := &model.TemplatesResponse{AvailableLevels: ieap.AvailableLevels()}
	if level == "" {
		resp.Templates = ieap.All()
		return resp, nil
	}

	parsed, err := ieap.ParseLevel(string(level))
	if err != nil {
		return nil, err
	}
	tpl, err := ieap.Get(parsed)
	if err != nil {
		return nil, err
	}
	resp.Templates = map[model.Level]model.Structure{parsed: tpl}
	return resp, nil
}

// DetectLevel guesses the IEAP level of a course from its name. An empty
// courseName falls back to the stored short and full names.
func (s *Service) DetectLevel(ctx context.Context, actorID, courseID int64, courseName string) (*model.LevelDetection, error) {
	if err := s.authz.Require(ctx, actorID, courseID, auth.CapCourseView); err != nil {
		return nil, err
	}

	if courseName == "" {
		course, err := s.repo.FindCourse(ctx, courseID)
		if err != nil {
			return nil, err
		}
		if course == nil {
			return nil, fmt.Errorf("course %d: %w", courseID, errors.ErrNotFound)
		}
		courseName = course.ShortName + " " + course.FullName
	}

	out := &model.LevelDetection{
		CourseID:   courseID,
		CourseName: courseName,
		Confidence: model.ConfidenceNone,
	}
	level, ok := ieap.DetectLevel(courseName)
	if !ok {
		return out, nil
	}
	tpl, err := ieap.Get(level)
	if err != nil {
		return nil, err
	}
	out.DetectedLevel = &level
	out.Confidence = model.ConfidenceHigh
	out.TemplatePreview = ieap.Preview(tpl)
	return out, nil
}
