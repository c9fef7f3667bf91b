package sync

import (
	"context"
	"fmt"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/mapping"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

type enrollAction int

const (
	enrollCreated enrollAction = iota
	enrollUpdated
	enrollUnchanged
)

// PullEnrollments enrolls learners the SIS lists for the term and course
// code, both optional. Re-pulling an enrolled pair is a no-op.
func (s *Service) PullEnrollments(ctx context.Context, actorID int64, term, courseCode string) (*model.PullEnrollmentsResult, error) {
	if err := s.authz.Require(ctx, actorID, auth.SystemCourse, auth.CapSISPullEnrolment); err != nil {
		return nil, err
	}
	if err := s.requireEnabled(); err != nil {
		return nil, err
	}
	return s.pullEnrollments(ctx, term, courseCode, false)
}

func (s *Service) pullEnrollments(ctx context.Context, term, courseCode string, force bool) (*model.PullEnrollmentsResult, error) {
	result := &model.PullEnrollmentsResult{Errors: []model.EnrollmentRecordError{}}

	err := s.run(ctx, model.SyncTypeEnrollments, model.DirectionPull, nil, force, func(ctx context.Context) (outcome, error) {
		resp, err := s.sis.Enrollments(ctx, term, courseCode)
		if err != nil {
			return outcome{}, err
		}

		courses := make(map[string]bool)
		for _, raw := range resp.Enrollments {
			var action enrollAction
			e, err := model.DecodeEnrollment(raw)
			if err != nil {
				err = fmt.Errorf("malformed enrollment record: %w", err)
			} else {
				err = s.repo.WithTx(ctx, func(tx db.Repository) error {
					var txErr error
					action, txErr = s.processEnrollment(ctx, tx, s.mappings.Bind(tx), e)
					return txErr
				})
			}
			if err != nil {
				s.log.Warn().Err(err).Str("student_id", e.Student.ID.String()).Str("course_code", e.CourseCode).Msg("Enrollment record failed")
				result.Errors = append(result.Errors, model.EnrollmentRecordError{
					StudentID:  e.Student.ID.String(),
					CourseCode: e.CourseCode,
					Error:      err.Error(),
				})
				continue
			}
			switch action {
			case enrollCreated:
				result.Enrolled++
			case enrollUpdated:
				result.Updated++
			default:
				result.Unchanged++
			}
			courses[e.CourseCode] = true
		}
		result.CoursesProcessed = len(courses)

		return outcome{
			processed: len(resp.Enrollments),
			success:   result.Enrolled + result.Updated + result.Unchanged,
			failed:    len(result.Errors),
		}, nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) processEnrollment(ctx context.Context, tx db.Repository, maps *mapping.Store, e model.SISEnrollment) (enrollAction, error) {
	if e.Student.ID == "" {
		return 0, fmt.Errorf("enrollment without student id: %w", errors.ErrSchemaValidation)
	}

	user, created, err := s.findOrCreateLearner(ctx, tx, maps, e.Student)
	if err != nil {
		return 0, err
	}

	courseID, err := maps.ResolveByCode(ctx, model.EntityCourse, e.CourseCode)
	if err != nil {
		return 0, err
	}
	if courseID == 0 {
		return 0, fmt.Errorf("course not found for code %q: %w", e.CourseCode, errors.ErrNotFound)
	}
	course, err := tx.FindCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if course == nil {
		return 0, fmt.Errorf("course %d mapped from %q: %w", courseID, e.CourseCode, errors.ErrNotFound)
	}

	enrolled, err := tx.Enroll(ctx, courseID, user.ID, model.RoleStudent)
	if err != nil {
		return 0, err
	}
	remapped, err := maps.Upsert(ctx, model.EntityUser, user.ID, e.Student.ID.String(), nil)
	if err != nil {
		return 0, err
	}

	switch {
	case enrolled:
		return enrollCreated, nil
	case remapped && !created:
		return enrollUpdated, nil
	default:
		return enrollUnchanged, nil
	}
}

// findOrCreateLearner looks the student up by email, then by mapping, and
// creates a local account as a last resort.
func (s *Service) findOrCreateLearner(ctx context.Context, tx db.Repository, maps *mapping.Store, st model.SISStudent) (*model.User, bool, error) {
	if st.Email != "" {
		u, err := tx.FindUserByEmail(ctx, st.Email)
		if err != nil || u != nil {
			return u, false, err
		}
	}

	localID, err := maps.ResolveReverse(ctx, model.EntityUser, st.ID.String())
	if err != nil {
		return nil, false, err
	}
	if localID != 0 {
		u, err := tx.FindUser(ctx, localID)
		if err != nil || u != nil {
			return u, false, err
		}
	}

	u, err := s.createUser(ctx, tx, maps, model.SISUser{
		ID:        st.ID,
		Email:     st.Email,
		FirstName: st.FirstName,
		LastName:  st.LastName,
	})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}
