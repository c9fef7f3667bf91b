package db

import (
	"context"
	"fmt"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

const mappingSelect = `SELECT id, entity_type, local_id, remote_id, remote_code, active, created_at, updated_at FROM sis_mappings`

func (r *repository) findMapping(ctx context.Context, where string, args ...interface{}) (*model.Mapping, error) {
	var m model.Mapping
	err := r.q.QueryRowContext(ctx, mappingSelect+` WHERE `+where+` AND active = 1 ORDER BY id LIMIT 1`, args...).Scan(
		&m.ID, &m.EntityType, &m.LocalID, &m.RemoteID, &m.RemoteCode, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}
	return &m, nil
}

func (r *repository) FindMappingByLocal(ctx context.Context, entity model.EntityType, localID int64) (*model.Mapping, error) {
	return r.findMapping(ctx, `entity_type = ? AND local_id = ?`, entity, localID)
}

func (r *repository) FindMappingByRemote(ctx context.Context, entity model.EntityType, remoteID string) (*model.Mapping, error) {
	return r.findMapping(ctx, `entity_type = ? AND remote_id = ?`, entity, remoteID)
}

func (r *repository) FindMappingByCode(ctx context.Context, entity model.EntityType, code string) (*model.Mapping, error) {
	return r.findMapping(ctx, `entity_type = ? AND remote_code = ?`, entity, code)
}

func (r *repository) InsertMapping(ctx context.Context, m *model.Mapping) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO sis_mappings (entity_type, local_id, remote_id, remote_code, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, NOW(), NOW())`,
		m.EntityType, m.LocalID, m.RemoteID, m.RemoteCode)
	if isDuplicate(err) {
		return 0, fmt.Errorf("%w: %s local=%d remote=%s", errors.ErrMappingConflict, m.EntityType, m.LocalID, m.RemoteID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert mapping: %w", err)
	}
	return res.LastInsertId()
}

func (r *repository) UpdateMapping(ctx context.Context, m *model.Mapping) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sis_mappings SET remote_id = ?, remote_code = ?, updated_at = NOW() WHERE id = ?`,
		m.RemoteID, m.RemoteCode, m.ID)
	if isDuplicate(err) {
		return fmt.Errorf("%w: %s remote=%s already mapped", errors.ErrMappingConflict, m.EntityType, m.RemoteID)
	}
	if err != nil {
		return fmt.Errorf("failed to update mapping %d: %w", m.ID, err)
	}
	return nil
}
