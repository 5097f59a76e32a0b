package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/repository"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/storage"
)

type memoryRosters struct {
	rosters map[string][]string
	lookups int
}

func (m *memoryRosters) HasMember(_ context.Context, course, username string) (bool, error) {
	m.lookups++
	roster, ok := m.rosters[course]
	if !ok {
		return false, appErrors.ErrCacheMiss
	}
	for _, member := range roster {
		if member == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRosters) Store(_ context.Context, course string, members []string, _ time.Duration) error {
	m.rosters[course] = members
	return nil
}

func (m *memoryRosters) Evict(_ context.Context, course string) error {
	delete(m.rosters, course)
	return nil
}

type failingRosterStore struct{ memoryRosters }

func (f *failingRosterStore) HasMember(context.Context, string, string) (bool, error) {
	return false, errors.New("connection refused")
}

type cacheOps struct{ hits, misses int }

func (c *cacheOps) RecordCacheOperation(hit bool, _ time.Duration) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

type countingRosters struct {
	roster []string
	err    error
	calls  int
}

func (c *countingRosters) Roster(context.Context, string) ([]string, error) {
	c.calls++
	return c.roster, c.err
}

func TestStaffFromRosterFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cs.101"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cs.101", "staff.json"), []byte(`["prof","ta1"]`), 0o644))
	courses, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	svc := NewStaffService(repository.NewStaffRepository(courses), nil, zap.NewNop())
	ctx := context.Background()

	ok, err := svc.IsStaff(ctx, "cs.101", "prof")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsStaff(ctx, "cs.101", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsStaff(ctx, "cs.999", "prof")
	require.NoError(t, err)
	assert.False(t, ok, "course without roster has no staff")

	ok, _ = svc.IsStaff(ctx, "cs.101", "")
	assert.False(t, ok)
	ok, _ = svc.IsStaff(ctx, "../cs.101", "prof")
	assert.False(t, ok)
}

func TestStaffRosterIsCached(t *testing.T) {
	rosters := &countingRosters{roster: []string{"prof"}}
	ops := &cacheOps{}
	cache := NewRosterCache(&memoryRosters{rosters: map[string][]string{}}, ops, time.Minute, zap.NewNop())
	svc := NewStaffService(rosters, cache, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := svc.IsStaff(ctx, "cs.101", "prof")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := svc.IsStaff(ctx, "cs.101", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, rosters.calls)
	assert.Equal(t, 3, ops.hits)
	assert.Equal(t, 1, ops.misses)

	require.NoError(t, svc.Forget(ctx, "cs.101"))
	_, _ = svc.IsStaff(ctx, "cs.101", "prof")
	assert.Equal(t, 2, rosters.calls)
}

func TestStaffEmptyRosterIsCached(t *testing.T) {
	rosters := &countingRosters{err: repository.ErrRosterNotFound}
	cache := NewRosterCache(&memoryRosters{rosters: map[string][]string{}}, nil, 0, zap.NewNop())
	svc := NewStaffService(rosters, cache, zap.NewNop())

	for i := 0; i < 2; i++ {
		ok, err := svc.IsStaff(context.Background(), "cs.999", "prof")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, rosters.calls)
}

func TestStaffCacheFailureFallsBackToRoster(t *testing.T) {
	rosters := &countingRosters{roster: []string{"prof"}}
	store := &failingRosterStore{memoryRosters{rosters: map[string][]string{}}}
	svc := NewStaffService(rosters, NewRosterCache(store, nil, time.Minute, zap.NewNop()), zap.NewNop())

	ok, err := svc.IsStaff(context.Background(), "cs.101", "prof")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, rosters.calls)
}

func TestNilRosterCache(t *testing.T) {
	var cache *RosterCache
	assert.False(t, cache.Enabled())
	_, hit := cache.IsMember(context.Background(), "cs.101", "prof")
	assert.False(t, hit)
	cache.Store(context.Background(), "cs.101", []string{"prof"})
	assert.NoError(t, cache.Evict(context.Background(), "cs.101"))
}

func TestStaffRosterFailure(t *testing.T) {
	svc := NewStaffService(&countingRosters{err: errors.New("bad json")}, nil, zap.NewNop())
	ok, err := svc.IsStaff(context.Background(), "cs.101", "prof")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, 500, appErrors.FromError(err).Status)
}
