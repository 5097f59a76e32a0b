package service

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/repository"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
)

type rosterReader interface {
	Roster(ctx context.Context, course string) ([]string, error)
}

// StaffService answers whether a user may view a course's live work.
type StaffService struct {
	rosters rosterReader
	cache   *RosterCache
	logger  *zap.Logger
}

// NewStaffService constructs a StaffService. cache may be nil.
func NewStaffService(rosters rosterReader, cache *RosterCache, logger *zap.Logger) *StaffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{rosters: rosters, cache: cache, logger: logger}
}

// IsStaff reports whether username appears in the roster of course. A course
// without a roster has no staff.
func (s *StaffService) IsStaff(ctx context.Context, course, username string) (bool, error) {
	if username == "" || !ValidSegment(course) {
		return false, nil
	}
	if member, hit := s.cache.IsMember(ctx, course, username); hit {
		return member, nil
	}

	roster, err := s.rosters.Roster(ctx, course)
	if err != nil {
		if !errors.Is(err, repository.ErrRosterNotFound) {
			s.logger.Error("staff roster unreadable", zap.String("course", course), zap.Error(err))
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read staff roster")
		}
		roster = []string{}
	}
	s.cache.Store(ctx, course, roster)
	return slices.Contains(roster, username), nil
}

// Forget drops the cached roster of course.
func (s *StaffService) Forget(ctx context.Context, course string) error {
	return s.cache.Evict(ctx, course)
}
