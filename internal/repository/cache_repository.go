package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/asterism/pkg/errors"
)

// rosterLoaded is stored alongside the members so an empty roster still
// exists as a key. Usernames are word characters only and cannot collide.
const rosterLoaded = "\x00loaded"

// RosterCacheRepository keeps course staff rosters as Redis sets.
type RosterCacheRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRosterCacheRepository constructs the repository on top of client.
func NewRosterCacheRepository(client *redis.Client, logger *zap.Logger) *RosterCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterCacheRepository{client: client, prefix: "asterism:staff:", logger: logger}
}

// HasMember reports whether username is in the cached roster of course.
// ErrCacheMiss means the roster is not cached.
func (r *RosterCacheRepository) HasMember(ctx context.Context, course, username string) (bool, error) {
	key := r.key(course)
	var (
		exists *redis.IntCmd
		member *redis.BoolCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		exists = p.Exists(ctx, key)
		member = p.SIsMember(ctx, key, username)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis roster lookup %s: %w", key, err)
	}
	if exists.Val() == 0 {
		return false, appErrors.ErrCacheMiss
	}
	return member.Val(), nil
}

// Store replaces the cached roster of course and sets its ttl.
func (r *RosterCacheRepository) Store(ctx context.Context, course string, members []string, ttl time.Duration) error {
	key := r.key(course)
	values := make([]interface{}, 0, len(members)+1)
	values = append(values, rosterLoaded)
	for _, m := range members {
		values = append(values, m)
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.SAdd(ctx, key, values...)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis roster store %s: %w", key, err)
	}
	r.logger.Debug("staff roster cached", zap.String("course", course), zap.Int("members", len(members)))
	return nil
}

// Evict drops the cached roster of course.
func (r *RosterCacheRepository) Evict(ctx context.Context, course string) error {
	if err := r.client.Del(ctx, r.key(course)).Err(); err != nil {
		return fmt.Errorf("redis roster evict %s: %w", course, err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *RosterCacheRepository) Close() error {
	return r.client.Close()
}

func (r *RosterCacheRepository) key(course string) string {
	return r.prefix + course
}
