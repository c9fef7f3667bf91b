// Package mapping translates local user, course and category ids to and from
// their SIS-side identifiers.
package mapping

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

// Repository is the slice of db.Repository the store needs.
type Repository interface {
	db.MappingRepository
}

type Store struct {
	repo  Repository
	locks *entityLocks
	log   zerolog.Logger
}

// entityLocks serializes upserts per entity type within the process. The
// unique indexes on sis_mappings cover concurrent processes.
type entityLocks struct {
	mu    sync.Mutex
	byKey map[model.EntityType]*sync.Mutex
}

func (l *entityLocks) get(entity model.EntityType) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byKey[entity]
	if !ok {
		m = &sync.Mutex{}
		l.byKey[entity] = m
	}
	return m
}

func NewStore(repo Repository) *Store {
	return &Store{
		repo:  repo,
		locks: &entityLocks{byKey: make(map[model.EntityType]*sync.Mutex)},
		log:   logger.For("mapping"),
	}
}

// Bind returns a store writing through repo, typically a transaction, that
// shares this store's locks.
func (s *Store) Bind(repo Repository) *Store {
	return &Store{repo: repo, locks: s.locks, log: s.log}
}

// Resolve returns the remote id of a local entity, or "" when unmapped.
func (s *Store) Resolve(ctx context.Context, entity model.EntityType, localID int64) (string, error) {
	m, err := s.repo.FindMappingByLocal(ctx, entity, localID)
	if err != nil || m == nil {
		return "", err
	}
	return m.RemoteID, nil
}

// ResolveReverse returns the local id mapped to a remote id, or 0.
func (s *Store) ResolveReverse(ctx context.Context, entity model.EntityType, remoteID string) (int64, error) {
	m, err := s.repo.FindMappingByRemote(ctx, entity, remoteID)
	if err != nil || m == nil {
		return 0, err
	}
	return m.LocalID, nil
}

// ResolveCode returns the remote code of a local entity, such as a course
// code, or "" when unmapped or uncoded.
func (s *Store) ResolveCode(ctx context.Context, entity model.EntityType, localID int64) (string, error) {
	m, err := s.repo.FindMappingByLocal(ctx, entity, localID)
	if err != nil || m == nil || m.RemoteCode == nil {
		return "", err
	}
	return *m.RemoteCode, nil
}

// ResolveByCode returns the local id carrying a remote code, or 0.
func (s *Store) ResolveByCode(ctx context.Context, entity model.EntityType, code string) (int64, error) {
	m, err := s.repo.FindMappingByCode(ctx, entity, code)
	if err != nil || m == nil {
		return 0, err
	}
	return m.LocalID, nil
}

// Upsert points (entity, localID) at remoteID. The existing row for the local
// id is updated in place, otherwise a row is inserted. A remote id already
// mapped to a different local id yields ErrMappingConflict. changed is false
// when the row already held these values.
func (s *Store) Upsert(ctx context.Context, entity model.EntityType, localID int64, remoteID string, code *string) (bool, error) {
	if remoteID == "" {
		return false, errors.ValidationError{Field: "remote_id", Message: "remote id is required", Err: errors.ErrSchemaValidation}
	}

	lock := s.locks.get(entity)
	lock.Lock()
	defer lock.Unlock()

	log := s.log.With().Str("entity", string(entity)).Int64("local_id", localID).Str("remote_id", remoteID).Logger()

	owner, err := s.repo.FindMappingByRemote(ctx, entity, remoteID)
	if err != nil {
		return false, err
	}
	if owner != nil && owner.LocalID != localID {
		log.Warn().Int64("owner_local_id", owner.LocalID).Msg("Remote id already mapped")
		return false, fmt.Errorf("%w: %s remote=%s belongs to local=%d", errors.ErrMappingConflict, entity, remoteID, owner.LocalID)
	}

	existing, err := s.repo.FindMappingByLocal(ctx, entity, localID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if _, err := s.repo.InsertMapping(ctx, &model.Mapping{
			EntityType: entity,
			LocalID:    localID,
			RemoteID:   remoteID,
			RemoteCode: code,
		}); err != nil {
			return false, err
		}
		log.Debug().Msg("Mapping created")
		return true, nil
	}

	if existing.RemoteID == remoteID && sameCode(existing.RemoteCode, code) {
		return false, nil
	}
	existing.RemoteID = remoteID
	if code != nil {
		existing.RemoteCode = code
	}
	if err := s.repo.UpdateMapping(ctx, existing); err != nil {
		return false, err
	}
	log.Debug().Msg("Mapping updated")
	return true, nil
}

// sameCode treats a nil incoming code as "keep what is stored".
func sameCode(stored, incoming *string) bool {
	if incoming == nil {
		return true
	}
	return stored != nil && *stored == *incoming
}
