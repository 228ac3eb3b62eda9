package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/repository"
	"careera-payments/internal/infra/metrics"
	red "careera-payments/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

// userRepoCacheDecorator caches user reads made outside a transaction. Reads
// inside a transaction always hit the database so they see the row as the
// transaction does.
type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.UserRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func userKey(id int64) string { return fmt.Sprintf("user:id:%d", id) }

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	if tx != nil {
		metrics.ObserveCacheLookup("user", metrics.CacheBypass)
		return d.inner.FindByID(ctx, tx, id)
	}
	key := userKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.ObserveCacheLookup("user", metrics.CacheHit)
			return &user, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("user cache read failed")
	}

	metrics.ObserveCacheLookup("user", metrics.CacheMiss)
	user, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(user); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return user, nil
}

// UpdateRole invalidates first so a failed write never leaves stale data behind.
func (d *userRepoCacheDecorator) UpdateRole(ctx context.Context, tx repository.Tx, userID, roleID int64) error {
	if err := d.cache.Del(ctx, userKey(userID)); err != nil {
		d.log.Warn().Err(err).Int64("user_id", userID).Msg("user cache invalidation failed")
	}
	return d.inner.UpdateRole(ctx, tx, userID, roleID)
}
