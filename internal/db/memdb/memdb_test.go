package memdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

func TestWithTx_RollbackRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithTx(ctx, func(tx db.Repository) error {
		if _, err := tx.EnsureCourseCategory(ctx, 5); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Zero(t, s.CategoryCount(5))

	require.NoError(t, s.WithTx(ctx, func(tx db.Repository) error {
		_, err := tx.EnsureCourseCategory(ctx, 5)
		return err
	}))
	assert.Equal(t, 1, s.CategoryCount(5))
}

func TestInjectFault(t *testing.T) {
	s := New()
	s.InjectFault("CreateItem", errors.ErrNotFound)

	_, err := s.CreateItem(context.Background(), &model.GradeItem{ItemName: "x"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	s.ClearFaults()
	_, err = s.CreateItem(context.Background(), &model.GradeItem{ItemName: "x"})
	assert.NoError(t, err)
}

func TestMappingUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.InsertMapping(ctx, &model.Mapping{EntityType: model.EntityUser, LocalID: 1, RemoteID: "A"})
	require.NoError(t, err)
	_, err = s.InsertMapping(ctx, &model.Mapping{EntityType: model.EntityUser, LocalID: 2, RemoteID: "A"})
	assert.True(t, errors.Is(err, errors.ErrMappingConflict))
	_, err = s.InsertMapping(ctx, &model.Mapping{EntityType: model.EntityCourse, LocalID: 1, RemoteID: "A"})
	assert.NoError(t, err)
}

func TestRegrade_WeightedComposite(t *testing.T) {
	ctx := context.Background()
	s := New()
	course := s.AddCourse(model.Course{ShortName: "C"})
	learner := s.AddUser(model.User{Email: "l@example.edu"})
	_, err := s.Enroll(ctx, course.ID, learner.ID, model.RoleStudent)
	require.NoError(t, err)

	root, _ := s.EnsureCourseCategory(ctx, course.ID)
	main, _ := s.CreateCategory(ctx, &model.GradeCategory{CourseID: course.ID, ParentID: &root.ID, FullName: "S"})
	_, err = s.InsertStructure(ctx, &model.CompositeConfig{CourseID: course.ID, MainCategoryID: main.ID, StructureName: "S"})
	require.NoError(t, err)

	grammar, _ := s.CreateCategory(ctx, &model.GradeCategory{CourseID: course.ID, ParentID: &main.ID, FullName: "Grammar", AggregationCoef: 0.6})
	writing, _ := s.CreateCategory(ctx, &model.GradeCategory{CourseID: course.ID, ParentID: &main.ID, FullName: "Writing", AggregationCoef: 0.4})
	g1, _ := s.CreateItem(ctx, &model.GradeItem{CourseID: course.ID, CategoryID: &grammar.ID, ItemName: "G", ItemType: model.ItemTypeManual, GradeMax: 100})
	w1, _ := s.CreateItem(ctx, &model.GradeItem{CourseID: course.ID, CategoryID: &writing.ID, ItemName: "W", ItemType: model.ItemTypeManual, GradeMax: 100})

	v85, v90 := 85.0, 90.0
	require.NoError(t, s.UpsertGrade(ctx, g1.ID, learner.ID, &v85))
	require.NoError(t, s.UpsertGrade(ctx, w1.ID, learner.ID, &v90))
	s.Regrade(course.ID)

	total, err := s.FindGrade(ctx, main.TotalItemID, learner.ID)
	require.NoError(t, err)
	require.NotNil(t, total.FinalGrade)
	assert.InDelta(t, 87.0, *total.FinalGrade, 1e-9)
}
