//go:build integration

package db_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/testutil/testdb"
	"ieap-grade-sync/pkg/errors"
)

var handle *testdb.DBHandle

func TestMain(m *testing.M) {
	var err error
	handle, err = testdb.Start(context.Background())
	if err != nil {
		panic(err)
	}
	code := m.Run()
	handle.Close()
	os.Exit(code)
}

func TestMySQL_OneActiveStructurePerCourse(t *testing.T) {
	ctx := context.Background()
	repo := db.NewRepository(handle.DB)
	cfg := &model.CompositeConfig{CourseID: 501, MainCategoryID: 1, StructureName: "IEAP-4", CreatedBy: 2,
		Structure: model.Structure{Name: "IEAP-4"}}

	_, err := repo.InsertStructure(ctx, cfg)
	require.NoError(t, err)
	_, err = repo.InsertStructure(ctx, cfg)
	assert.True(t, errors.Is(err, errors.ErrStructureExists))

	ok, err := repo.DeactivateStructure(ctx, 501)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = repo.InsertStructure(ctx, cfg)
	assert.NoError(t, err, "a deactivated structure must not block a new one")
}

func TestMySQL_MappingUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := db.NewRepository(handle.DB)

	_, err := repo.InsertMapping(ctx, &model.Mapping{EntityType: model.EntityUser, LocalID: 70, RemoteID: "S-70"})
	require.NoError(t, err)

	_, err = repo.InsertMapping(ctx, &model.Mapping{EntityType: model.EntityUser, LocalID: 71, RemoteID: "S-70"})
	assert.True(t, errors.Is(err, errors.ErrMappingConflict))
	_, err = repo.InsertMapping(ctx, &model.Mapping{EntityType: model.EntityUser, LocalID: 70, RemoteID: "S-71"})
	assert.True(t, errors.Is(err, errors.ErrMappingConflict))

	_, err = repo.InsertMapping(ctx, &model.Mapping{EntityType: model.EntityCourse, LocalID: 70, RemoteID: "S-70"})
	assert.NoError(t, err, "uniqueness is per entity type")
}

func TestMySQL_TransactionRollsBackCategoryTree(t *testing.T) {
	ctx := context.Background()
	repo := db.NewRepository(handle.DB)

	err := repo.WithTx(ctx, func(tx db.Repository) error {
		root, err := tx.EnsureCourseCategory(ctx, 900)
		if err != nil {
			return err
		}
		_, err = tx.CreateCategory(ctx, &model.GradeCategory{CourseID: 900, ParentID: &root.ID, FullName: "IEAP-1",
			Aggregation: model.AggregationWeightedMean})
		if err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var n int
	require.NoError(t, handle.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM grade_categories WHERE course_id = 900`).Scan(&n))
	assert.Zero(t, n)
}
