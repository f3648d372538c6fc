// Package lock provides a Redis-backed mutual exclusion lock shared by every
// FundboT instance pointed at the same Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultExpiry bounds how long a crashed holder can block the others.
const DefaultExpiry = 2 * time.Minute

var (
	// ErrEmptyKey is returned when an empty lock key is provided.
	ErrEmptyKey = errors.New("lock key cannot be empty")
	// ErrNotHeld is returned when releasing a lock that already expired.
	ErrNotHeld = errors.New("lock was not held or already expired")
)

// RedisLocker hands out single-attempt locks using the RedLock algorithm
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	logger *logrus.Logger
}

// NewRedisClient connects to the Redis instance described by a redis:// URL
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisLocker creates a locker over client. A non-positive expiry falls
// back to DefaultExpiry.
func NewRedisLocker(client redis.UniversalClient, expiry time.Duration, logger *logrus.Logger) *RedisLocker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
		logger: logger,
	}
}

// TryLock makes one attempt to take key. It returns acquired=false with a
// nil error when another holder owns the lock. The returned release function
// must be called once the critical section ends.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}

	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			l.logger.WithField("lock_key", key).Debug("Lock already held by another process")
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	release := func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		if !ok {
			return ErrNotHeld
		}
		return nil
	}

	return release, true, nil
}

// isContention separates "someone else holds it" from real failures. redsync
// reports the former as ErrFailed or as an ErrTaken naming the busy nodes.
func isContention(err error) bool {
	var taken *redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken)
}
