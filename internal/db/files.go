package db

import (
	"context"
	"fmt"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

func (r *repository) CreateFile(ctx context.Context, f *model.ImportFile) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO import_files (course_id, s3_path, uploaded_by, status, created_at, updated_at) VALUES (?, ?, ?, ?, NOW(), NOW())`,
		f.CourseID, f.S3Path, f.UploadedBy, f.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to insert import file: %w", err)
	}
	return res.LastInsertId()
}

func (r *repository) GetFile(ctx context.Context, fileID int64) (*model.ImportFile, error) {
	query := `SELECT id, course_id, s3_path, uploaded_by, status, total_records, imported_count, error_message, created_at, updated_at
			  FROM import_files WHERE id = ?`

	var file model.ImportFile
	err := r.q.QueryRowContext(ctx, query, fileID).Scan(
		&file.ID, &file.CourseID, &file.S3Path, &file.UploadedBy, &file.Status,
		&file.TotalRecords, &file.ImportedCount, &file.ErrorMessage, &file.CreatedAt, &file.UpdatedAt,
	)
	if noRows(err) {
		return nil, fmt.Errorf("%w: %d", errors.ErrFileNotFound, fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load import file %d: %w", fileID, err)
	}
	return &file, nil
}

func (r *repository) UpdateFileStatus(ctx context.Context, fileID int64, status model.FileStatus, total, imported int, errorMessage *string) error {
	query := `UPDATE import_files SET status = ?, total_records = ?, imported_count = ?, error_message = ?, updated_at = NOW() WHERE id = ?`
	_, err := r.q.ExecContext(ctx, query, status, total, imported, errorMessage, fileID)
	if err != nil {
		return fmt.Errorf("failed to update import file %d: %w", fileID, err)
	}
	return nil
}
