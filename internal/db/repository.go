package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

// Find* methods return (nil, nil) when the row does not exist. Absence is an
// expected state for most lookups, so it is not an error.

type StructureRepository interface {
	FindActiveStructure(ctx context.Context, courseID int64) (*model.CompositeConfig, error)
	InsertStructure(ctx context.Context, cfg *model.CompositeConfig) (int64, error)
	DeactivateStructure(ctx context.Context, courseID int64) (bool, error)
}

type GradebookRepository interface {
	EnsureCourseCategory(ctx context.Context, courseID int64) (*model.GradeCategory, error)
	CreateCategory(ctx context.Context, cat *model.GradeCategory) (*model.GradeCategory, error)
	FindCategory(ctx context.Context, id int64) (*model.GradeCategory, error)
	FindChildCategory(ctx context.Context, parentID int64, name string) (*model.GradeCategory, error)
	CreateItem(ctx context.Context, item *model.GradeItem) (*model.GradeItem, error)
	FindItem(ctx context.Context, id int64) (*model.GradeItem, error)
	FindItemByName(ctx context.Context, categoryID int64, name string) (*model.GradeItem, error)
	FindCourseItemByName(ctx context.Context, courseID int64, name string) (*model.GradeItem, error)
	FindGrade(ctx context.Context, itemID, userID int64) (*model.Grade, error)
	UpsertGrade(ctx context.Context, itemID, userID int64, value *float64) error
}

type UserRepository interface {
	FindUser(ctx context.Context, id int64) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	UpdateUserNames(ctx context.Context, id int64, firstName, lastName string) error
	FindCourse(ctx context.Context, id int64) (*model.Course, error)
	IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error)
	Enroll(ctx context.Context, courseID, userID int64, role string) (bool, error)
	ListEnrolledUsers(ctx context.Context, courseID int64) ([]model.User, error)
}

type MappingRepository interface {
	FindMappingByLocal(ctx context.Context, entity model.EntityType, localID int64) (*model.Mapping, error)
	FindMappingByRemote(ctx context.Context, entity model.EntityType, remoteID string) (*model.Mapping, error)
	FindMappingByCode(ctx context.Context, entity model.EntityType, code string) (*model.Mapping, error)
	InsertMapping(ctx context.Context, m *model.Mapping) (int64, error)
	UpdateMapping(ctx context.Context, m *model.Mapping) error
}

type SyncLogFilter struct {
	SyncType model.SyncType
	CourseID *int64
	Status   model.SyncStatus
	Limit    int
}

type SyncLogRepository interface {
	InsertSyncLog(ctx context.Context, l *model.SyncLog) (int64, error)
	UpdateSyncLog(ctx context.Context, l *model.SyncLog) error
	ListSyncLogs(ctx context.Context, filter SyncLogFilter) ([]model.SyncLog, error)
}

type FileRepository interface {
	CreateFile(ctx context.Context, f *model.ImportFile) (int64, error)
	GetFile(ctx context.Context, fileID int64) (*model.ImportFile, error)
	UpdateFileStatus(ctx context.Context, fileID int64, status model.FileStatus, total, imported int, errorMessage *string) error
}

type CapabilityRepository interface {
	HasCapability(ctx context.Context, userID, courseID int64, capability string) (bool, error)
}

type Repository interface {
	StructureRepository
	GradebookRepository
	UserRepository
	MappingRepository
	SyncLogRepository
	FileRepository
	CapabilityRepository

	// WithTx runs fn inside one transaction. Nested calls join the outer
	// transaction. fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repository struct {
	db   *sql.DB
	q    querier
	inTx bool
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db, q: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&repository{db: r.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
