package db

import (
	"context"
	"encoding/json"
	"fmt"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

func (r *repository) FindActiveStructure(ctx context.Context, courseID int64) (*model.CompositeConfig, error) {
	query := `SELECT id, course_id, main_category_id, structure_name, config_data, active, created_by, created_at, updated_at
			  FROM composite_configs WHERE course_id = ? AND active = 1`

	var cfg model.CompositeConfig
	var raw []byte
	err := r.q.QueryRowContext(ctx, query, courseID).Scan(
		&cfg.ID, &cfg.CourseID, &cfg.MainCategoryID, &cfg.StructureName, &raw,
		&cfg.Active, &cfg.CreatedBy, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load composite config for course %d: %w", courseID, err)
	}
	if err := json.Unmarshal(raw, &cfg.Structure); err != nil {
		return nil, fmt.Errorf("failed to decode composite config %d: %w", cfg.ID, err)
	}
	return &cfg, nil
}

// InsertStructure stores an active config. A second active row for the same
// course violates the unique index and returns ErrStructureExists.
func (r *repository) InsertStructure(ctx context.Context, cfg *model.CompositeConfig) (int64, error) {
	raw, err := json.Marshal(cfg.Structure)
	if err != nil {
		return 0, fmt.Errorf("failed to encode structure: %w", err)
	}

	query := `INSERT INTO composite_configs (course_id, main_category_id, structure_name, config_data, active, created_by, created_at, updated_at)
			  VALUES (?, ?, ?, ?, 1, ?, NOW(), NOW())`
	res, err := r.q.ExecContext(ctx, query, cfg.CourseID, cfg.MainCategoryID, cfg.StructureName, raw, cfg.CreatedBy)
	if isDuplicate(err) {
		return 0, errors.ErrStructureExists
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert composite config: %w", err)
	}
	return res.LastInsertId()
}

func (r *repository) DeactivateStructure(ctx context.Context, courseID int64) (bool, error) {
	query := `UPDATE composite_configs SET active = 0, updated_at = NOW() WHERE course_id = ? AND active = 1`
	res, err := r.q.ExecContext(ctx, query, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate composite config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
