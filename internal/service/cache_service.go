package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/asterism/pkg/errors"
)

// DefaultRosterTTL bounds how stale a cached staff roster may be.
const DefaultRosterTTL = 5 * time.Minute

type rosterCacheStore interface {
	HasMember(ctx context.Context, course, username string) (bool, error)
	Store(ctx context.Context, course string, members []string, ttl time.Duration) error
	Evict(ctx context.Context, course string) error
}

type cacheRecorder interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// RosterCache fronts staff roster lookups with a shared cache. A nil
// *RosterCache is valid and never hits.
type RosterCache struct {
	store   rosterCacheStore
	metrics cacheRecorder
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRosterCache constructs a RosterCache. metrics may be nil.
func NewRosterCache(store rosterCacheStore, metrics cacheRecorder, ttl time.Duration, logger *zap.Logger) *RosterCache {
	if ttl <= 0 {
		ttl = DefaultRosterTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterCache{store: store, metrics: metrics, ttl: ttl, logger: logger}
}

// Enabled reports whether lookups reach a store.
func (c *RosterCache) Enabled() bool {
	return c != nil && c.store != nil
}

// IsMember answers from the cache. hit is false when the roster is not cached
// or the cache failed; callers then read the roster themselves.
func (c *RosterCache) IsMember(ctx context.Context, course, username string) (member, hit bool) {
	if !c.Enabled() {
		return false, false
	}
	start := time.Now()
	member, err := c.store.HasMember(ctx, course, username)
	c.record(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("roster cache lookup failed", zap.String("course", course), zap.Error(err))
		}
		return false, false
	}
	return member, true
}

// Store caches the roster of course. Failures are logged only.
func (c *RosterCache) Store(ctx context.Context, course string, members []string) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Store(ctx, course, members, c.ttl); err != nil {
		c.logger.Warn("roster cache store failed", zap.String("course", course), zap.Error(err))
	}
}

// Evict drops the cached roster of course.
func (c *RosterCache) Evict(ctx context.Context, course string) error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Evict(ctx, course)
}

func (c *RosterCache) record(hit bool, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordCacheOperation(hit, duration)
	}
}
