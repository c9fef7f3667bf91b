package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieap-grade-sync/pkg/errors"
)

type fakeStore struct {
	grants map[string]bool
	err    error
}

func (f fakeStore) HasCapability(_ context.Context, userID, courseID int64, capability string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.grants[capability], nil
}

func TestChecker_FailsClosed(t *testing.T) {
	ctx := context.Background()

	allow := NewChecker(fakeStore{grants: map[string]bool{"grade:view": true}})
	assert.NoError(t, allow.Require(ctx, 7, 5, CapGradeView))
	assert.True(t, errors.Is(allow.Require(ctx, 7, 5, CapGradeEdit), errors.ErrPermissionDenied))
	assert.True(t, errors.Is(allow.Require(ctx, 0, 5, CapGradeView), errors.ErrPermissionDenied))

	broken := NewChecker(fakeStore{err: errors.New("db down")})
	assert.True(t, errors.Is(broken.Require(ctx, 7, 5, CapGradeView), errors.ErrPermissionDenied))
}

func TestUnrestricted(t *testing.T) {
	assert.NoError(t, Unrestricted().Require(context.Background(), SystemActor, 1, CapSISSync))
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("secret", "ieap-grade-sync")
	tok, err := m.Issue(42, time.Minute)
	require.NoError(t, err)

	id, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("secret", "ieap-grade-sync")

	expired, err := m.Issue(42, -time.Minute)
	require.NoError(t, err)
	_, err = m.Parse(expired)
	assert.True(t, errors.Is(err, errors.ErrAuthenticationFailed))

	other, err := NewTokenManager("other", "ieap-grade-sync").Issue(42, time.Minute)
	require.NoError(t, err)
	_, err = m.Parse(other)
	assert.True(t, errors.Is(err, errors.ErrAuthenticationFailed))

	_, err = m.Parse("not-a-token")
	assert.True(t, errors.Is(err, errors.ErrAuthenticationFailed))
}
