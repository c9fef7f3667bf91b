package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewRepository(conn), mock
}

var duplicateEntry = &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}

func TestInsertStructure_DuplicateActiveMapsToConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO composite_configs").
		WithArgs(int64(5), int64(90), "IEAP-4", sqlmock.AnyArg(), int64(2)).
		WillReturnError(duplicateEntry)

	_, err := repo.InsertStructure(context.Background(), &model.CompositeConfig{
		CourseID: 5, MainCategoryID: 90, StructureName: "IEAP-4", CreatedBy: 2,
	})
	assert.True(t, errors.Is(err, errors.ErrStructureExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveStructure(t *testing.T) {
	repo, mock := newMockRepo(t)
	cols := []string{"id", "course_id", "main_category_id", "structure_name", "config_data", "active", "created_by", "created_at", "updated_at"}
	now := time.Now()

	mock.ExpectQuery("FROM composite_configs WHERE course_id = \\? AND active = 1").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			1, 5, 90, "IEAP-4",
			[]byte(`{"name":"IEAP-4","components":[{"name":"Grammar","weight":0.5,"subitems":[{"name":"Quiz","maxgrade":100}]}]}`),
			true, 2, now, now))
	mock.ExpectQuery("FROM composite_configs").
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows(cols))

	cfg, err := repo.FindActiveStructure(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, int64(90), cfg.MainCategoryID)
	assert.Equal(t, "Grammar", cfg.Structure.Components[0].Name)
	assert.Equal(t, 100.0, cfg.Structure.Components[0].Items[0].MaxGrade)

	cfg, err = repo.FindActiveStructure(context.Background(), 6)
	require.NoError(t, err)
	assert.Nil(t, cfg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCategory_AlsoCreatesTotalItem(t *testing.T) {
	repo, mock := newMockRepo(t)
	parent := int64(10)

	mock.ExpectExec("INSERT INTO grade_categories").
		WithArgs(int64(5), sqlmock.AnyArg(), "Grammar", "weighted_mean", 0.5).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec("INSERT INTO grade_items").
		WithArgs(int64(5), "category", int64(11)).
		WillReturnResult(sqlmock.NewResult(40, 1))

	cat, err := repo.CreateCategory(context.Background(), &model.GradeCategory{
		CourseID: 5, ParentID: &parent, FullName: "Grammar",
		Aggregation: model.AggregationWeightedMean, AggregationCoef: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), cat.ID)
	assert.Equal(t, int64(40), cat.TotalItemID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO grade_categories").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO grade_items").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Repository) error {
		_, err := tx.CreateCategory(context.Background(), &model.GradeCategory{CourseID: 1, FullName: "x"})
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitsAndNestedJoins(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE composite_configs SET active = 0").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx Repository) error {
		return tx.WithTx(context.Background(), func(inner Repository) error {
			ok, err := inner.DeactivateStructure(context.Background(), 3)
			assert.True(t, ok)
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnroll_IsIdempotent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT IGNORE INTO user_enrolments").
		WithArgs(int64(5), int64(7), "student").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT IGNORE INTO user_enrolments").
		WithArgs(int64(5), int64(7), "student").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Enroll(context.Background(), 5, 7, model.RoleStudent)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Enroll(context.Background(), 5, 7, model.RoleStudent)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMapping_DuplicateIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO sis_mappings").WillReturnError(duplicateEntry)

	_, err := repo.InsertMapping(context.Background(), &model.Mapping{
		EntityType: model.EntityUser, LocalID: 7, RemoteID: "S-100",
	})
	assert.True(t, errors.Is(err, errors.ErrMappingConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindGrade_NullFinalGradeStaysNil(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM grade_grades").
		WithArgs(int64(40), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "item_id", "user_id", "final_grade", "updated_at"}).
			AddRow(1, 40, 7, nil, time.Now()))

	g, err := repo.FindGrade(context.Background(), 40, 7)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Nil(t, g.FinalGrade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSyncLogs_AppliesFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	course := int64(5)
	now := time.Now()

	mock.ExpectQuery("FROM sis_sync_logs WHERE sync_type = \\? AND course_id = \\? ORDER BY").
		WithArgs("grades", int64(5), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sync_type", "course_id", "direction", "records_processed",
			"records_success", "records_failed", "status", "error_message", "created_at", "updated_at"}).
			AddRow(3, "grades", 5, "push", 2, 2, 0, "success", nil, now, now))

	logs, err := repo.ListSyncLogs(context.Background(), SyncLogFilter{SyncType: model.SyncTypeGrades, CourseID: &course})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncStatusSuccess, logs[0].Status)
	assert.Nil(t, logs[0].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFile_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM import_files WHERE id = \\?").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetFile(context.Background(), 99)
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
