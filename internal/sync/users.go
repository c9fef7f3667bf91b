package sync

import (
	"context"
	"fmt"
	"strings"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/mapping"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

// SyncUsers pulls SIS user records, all of them when ids is empty. Local
// accounts are matched by email; unmatched records become new accounts.
func (s *Service) SyncUsers(ctx context.Context, actorID int64, ids []string) (*model.SyncUsersResult, error) {
	if err := s.authz.Require(ctx, actorID, auth.SystemCourse, auth.CapSISSync); err != nil {
		return nil, err
	}
	if err := s.requireEnabled(); err != nil {
		return nil, err
	}
	return s.syncUsers(ctx, ids, false)
}

func (s *Service) syncUsers(ctx context.Context, ids []string, force bool) (*model.SyncUsersResult, error) {
	result := &model.SyncUsersResult{Errors: []model.UserRecordError{}}

	err := s.run(ctx, model.SyncTypeUsers, model.DirectionPull, nil, force, func(ctx context.Context) (outcome, error) {
		resp, err := s.sis.Users(ctx, ids)
		if err != nil {
			return outcome{}, err
		}

		for _, raw := range resp.Users {
			var created bool
			su, err := model.DecodeUser(raw)
			if err != nil {
				err = fmt.Errorf("malformed user record: %w", err)
			} else {
				err = s.repo.WithTx(ctx, func(tx db.Repository) error {
					var txErr error
					created, txErr = s.processUser(ctx, tx, s.mappings.Bind(tx), su)
					return txErr
				})
			}
			if err != nil {
				s.log.Warn().Err(err).Str("sis_id", su.ID.String()).Msg("User record failed")
				result.Errors = append(result.Errors, model.UserRecordError{
					UserID: su.ID.String(),
					Email:  su.Email,
					Error:  err.Error(),
				})
				continue
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}

		return outcome{
			processed: len(resp.Users),
			success:   result.Created + result.Updated,
			failed:    len(result.Errors),
		}, nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) processUser(ctx context.Context, tx db.Repository, maps *mapping.Store, su model.SISUser) (bool, error) {
	if su.ID == "" {
		return false, fmt.Errorf("user record without id: %w", errors.ErrSchemaValidation)
	}
	if strings.TrimSpace(su.Email) == "" {
		return false, fmt.Errorf("user %s has no email: %w", su.ID, errors.ErrSchemaValidation)
	}

	existing, err := tx.FindUserByEmail(ctx, su.Email)
	if err != nil {
		return false, err
	}
	if existing == nil {
		_, err := s.createUser(ctx, tx, maps, su)
		return true, err
	}

	if err := tx.UpdateUserNames(ctx, existing.ID, su.FirstName, su.LastName); err != nil {
		return false, err
	}
	if _, err := maps.Upsert(ctx, model.EntityUser, existing.ID, su.ID.String(), nil); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Service) createUser(ctx context.Context, tx db.Repository, maps *mapping.Store, su model.SISUser) (*model.User, error) {
	if su.Email == "" {
		return nil, fmt.Errorf("cannot create user %s without email: %w", su.ID, errors.ErrSchemaValidation)
	}
	username := su.Username
	if username == "" {
		username = su.Email
	}
	u := &model.User{
		Username:  strings.ToLower(username),
		Email:     su.Email,
		FirstName: su.FirstName,
		LastName:  su.LastName,
		Auth:      s.syncCfg.DefaultAuth,
		Confirmed: true,
		Lang:      s.syncCfg.DefaultLang,
	}
	id, err := tx.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	u.ID = id
	if _, err := maps.Upsert(ctx, model.EntityUser, id, su.ID.String(), nil); err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", id).Str("sis_id", su.ID.String()).Msg("Created user from SIS")
	return u, nil
}
