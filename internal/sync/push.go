package sync

import (
	"bytes"
	"context"
	"encoding/json"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/storage"
)

// PushGrades sends the course's composite grades to the SIS in one batch.
// Learners without a user mapping are skipped, not failed.
func (s *Service) PushGrades(ctx context.Context, actorID, courseID int64, userID *int64) (*model.PushResult, error) {
	if err := s.authz.Require(ctx, actorID, courseID, auth.CapSISPushGrades); err != nil {
		return nil, err
	}
	if err := s.requireEnabled(); err != nil {
		return nil, err
	}
	return s.pushGrades(ctx, courseID, userID, false)
}

func (s *Service) pushGrades(ctx context.Context, courseID int64, userID *int64, force bool) (*model.PushResult, error) {
	result := &model.PushResult{Skipped: []int64{}, Errors: []json.RawMessage{}}

	err := s.run(ctx, model.SyncTypeGrades, model.DirectionPush, &courseID, force, func(ctx context.Context) (outcome, error) {
		report, err := s.reports.Report(ctx, courseID, userID, true)
		if err != nil {
			return outcome{}, err
		}

		req, err := s.buildImport(ctx, courseID, report, result)
		if err != nil {
			return outcome{}, err
		}
		if len(req.Grades) == 0 {
			result.Success = true
			return outcome{}, nil
		}

		s.archivePayload(ctx, req)

		resp, err := s.sis.ImportGrades(ctx, req)
		if err != nil {
			return outcome{processed: len(req.Grades), failed: len(req.Grades)}, err
		}

		result.Success = true
		result.Count = len(req.Grades)
		if resp.Errors != nil {
			result.Errors = resp.Errors
		}
		return outcome{
			processed: len(req.Grades),
			success:   len(resp.Success),
			failed:    len(resp.Errors),
		}, nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) buildImport(ctx context.Context, courseID int64, report *model.GradeReport, result *model.PushResult) (model.GradeImportRequest, error) {
	req := model.GradeImportRequest{
		Action:    model.GradeImportAction,
		Timestamp: s.now().Unix(),
		Grades:    make([]model.StudentGradeEntry, 0, len(report.Learners)),
	}

	code, err := s.mappings.ResolveCode(ctx, model.EntityCourse, courseID)
	if err != nil {
		return req, err
	}
	if code != "" {
		req.CourseCode = &code
	}

	for _, lg := range report.Learners {
		studentID, err := s.mappings.Resolve(ctx, model.EntityUser, lg.UserID)
		if err != nil {
			return req, err
		}
		if studentID == "" {
			result.Skipped = append(result.Skipped, lg.UserID)
			continue
		}

		entry := model.StudentGradeEntry{
			StudentID:      studentID,
			StudentEmail:   lg.Email,
			CompositeGrade: lg.CompositeGrade,
		}
		if len(lg.Components) > 0 {
			entry.Components = make(map[string]model.ComponentPayload, len(lg.Components))
			for _, c := range lg.Components {
				items := make([]model.ItemPayload, 0, len(c.Items))
				for _, it := range c.Items {
					items = append(items, model.ItemPayload{
						Name:       it.Name,
						Grade:      it.Grade,
						MaxGrade:   it.MaxGrade,
						Percentage: it.Percentage,
					})
				}
				entry.Components[c.Name] = model.ComponentPayload{Grade: c.Grade, Weight: c.Weight, Items: items}
			}
		}
		req.Grades = append(req.Grades, entry)
	}

	if len(result.Skipped) > 0 {
		s.log.Info().Int64("course_id", courseID).Int("skipped", len(result.Skipped)).Msg("Learners without SIS mapping skipped")
	}
	return req, nil
}

// archivePayload keeps a copy of the outgoing batch. Archive failures never
// block the push.
func (s *Service) archivePayload(ctx context.Context, req model.GradeImportRequest) {
	if s.archive == nil || !s.syncCfg.ArchivePayload {
		return
	}
	data, err := json.Marshal(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to marshal payload for archive")
		return
	}
	key := storage.ArchiveKey(s.syncCfg.ArchivePrefix, string(model.SyncTypeGrades), s.now())
	if err := s.archive.Upload(ctx, key, "application/json", bytes.NewReader(data)); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to archive SIS payload")
		return
	}
	s.log.Debug().Str("key", key).Msg("SIS payload archived")
}
