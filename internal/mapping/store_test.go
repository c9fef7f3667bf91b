package mapping

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieap-grade-sync/internal/db/memdb"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestUpsert_InsertThenUnchanged(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memdb.New())

	changed, err := s.Upsert(ctx, model.EntityUser, 7, "S-100", nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Upsert(ctx, model.EntityUser, 7, "S-100", nil)
	require.NoError(t, err)
	assert.False(t, changed)

	remote, err := s.Resolve(ctx, model.EntityUser, 7)
	require.NoError(t, err)
	assert.Equal(t, "S-100", remote)

	local, err := s.ResolveReverse(ctx, model.EntityUser, "S-100")
	require.NoError(t, err)
	assert.Equal(t, int64(7), local)
}

func TestUpsert_UpdatesExistingLocalRow(t *testing.T) {
	ctx := context.Background()
	repo := memdb.New()
	s := NewStore(repo)

	_, err := s.Upsert(ctx, model.EntityCourse, 3, "C-1", strPtr("ENG101"))
	require.NoError(t, err)
	changed, err := s.Upsert(ctx, model.EntityCourse, 3, "C-2", nil)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Len(t, repo.Mappings(), 1)
	code, err := s.ResolveCode(ctx, model.EntityCourse, 3)
	require.NoError(t, err)
	assert.Equal(t, "ENG101", code)

	local, err := s.ResolveByCode(ctx, model.EntityCourse, "ENG101")
	require.NoError(t, err)
	assert.Equal(t, int64(3), local)
}

func TestUpsert_RemoteOwnedByAnotherLocal(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memdb.New())

	_, err := s.Upsert(ctx, model.EntityUser, 1, "S-1", nil)
	require.NoError(t, err)

	_, err = s.Upsert(ctx, model.EntityUser, 2, "S-1", nil)
	assert.True(t, errors.Is(err, errors.ErrMappingConflict))

	// other entity types are independent
	_, err = s.Upsert(ctx, model.EntityCourse, 2, "S-1", nil)
	assert.NoError(t, err)
}

func TestUpsert_EmptyRemoteRejected(t *testing.T) {
	_, err := NewStore(memdb.New()).Upsert(context.Background(), model.EntityUser, 1, "", nil)
	assert.True(t, errors.Is(err, errors.ErrSchemaValidation))
}

func TestResolve_Unmapped(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memdb.New())

	remote, err := s.Resolve(ctx, model.EntityUser, 99)
	require.NoError(t, err)
	assert.Empty(t, remote)

	local, err := s.ResolveReverse(ctx, model.EntityUser, "nope")
	require.NoError(t, err)
	assert.Zero(t, local)
}

func TestUpsert_ConcurrentSameRemote(t *testing.T) {
	ctx := context.Background()
	repo := memdb.New()
	s := NewStore(repo)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Upsert(ctx, model.EntityUser, int64(i+1), "SHARED", nil)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.True(t, errors.Is(err, errors.ErrMappingConflict), fmt.Sprint(err))
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, repo.Mappings(), 1)
}

func TestBind_SharesLocks(t *testing.T) {
	s := NewStore(memdb.New())
	bound := s.Bind(memdb.New())
	assert.Same(t, s.locks.get(model.EntityUser), bound.locks.get(model.EntityUser))
}
