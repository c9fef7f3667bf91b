package db

import (
	"context"
	"fmt"
	"strings"

	"ieap-grade-sync/internal/model"
)

func (r *repository) InsertSyncLog(ctx context.Context, l *model.SyncLog) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO sis_sync_logs (sync_type, course_id, direction, records_processed, records_success, records_failed, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`,
		l.SyncType, l.CourseID, l.Direction, l.RecordsProcessed, l.RecordsSuccess, l.RecordsFailed, l.Status, l.ErrorMessage)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sync log: %w", err)
	}
	return res.LastInsertId()
}

func (r *repository) UpdateSyncLog(ctx context.Context, l *model.SyncLog) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sis_sync_logs SET records_processed = ?, records_success = ?, records_failed = ?, status = ?, error_message = ?, updated_at = NOW()
		 WHERE id = ?`,
		l.RecordsProcessed, l.RecordsSuccess, l.RecordsFailed, l.Status, l.ErrorMessage, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update sync log %d: %w", l.ID, err)
	}
	return nil
}

func (r *repository) ListSyncLogs(ctx context.Context, filter SyncLogFilter) ([]model.SyncLog, error) {
	var where []string
	var args []interface{}
	if filter.SyncType != "" {
		where = append(where, "sync_type = ?")
		args = append(args, filter.SyncType)
	}
	if filter.CourseID != nil {
		where = append(where, "course_id = ?")
		args = append(args, *filter.CourseID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT id, sync_type, course_id, direction, records_processed, records_success, records_failed, status, error_message, created_at, updated_at
			  FROM sis_sync_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []model.SyncLog
	for rows.Next() {
		var l model.SyncLog
		if err := rows.Scan(&l.ID, &l.SyncType, &l.CourseID, &l.Direction, &l.RecordsProcessed,
			&l.RecordsSuccess, &l.RecordsFailed, &l.Status, &l.ErrorMessage, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
