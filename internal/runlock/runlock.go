/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package runlock excludes overlapping fetch/publish runs across
// processes with a redis lease. The engine itself assumes one run at a
// time; the lock enforces that assumption when shared infrastructure
// exists, and a no-op locker covers single-process deployments where
// the external trigger policy already guarantees it.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/telemetry"
)

// ErrLockHeld reports that another run currently holds the lock.
var ErrLockHeld = errors.New("runlock: held by another run")

const (
	keyPrefix    = "munin:runlock:"
	defaultLease = 10 * time.Minute
)

// releaseScript deletes the key only while we still own it, so an
// expired lease taken over by another run is never released from here.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker serializes named runs. Acquire returns a release func on
// success and ErrLockHeld when the name is taken.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// Config configures the redis locker.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InstanceID    string
	Lease         time.Duration
}

// RedisLocker implements Locker on a redis SetNX lease.
type RedisLocker struct {
	client     *redis.Client
	logger     zerolog.Logger
	instanceID string
	lease      time.Duration
}

// New connects to redis and returns the locker.
func New(cfg Config, logger zerolog.Logger) (*RedisLocker, error) {
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Lease == 0 {
		cfg.Lease = defaultLease
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log := logger.With().Str("component", "runlock").Logger()
	log.Info().Str("redis_addr", cfg.RedisAddr).Str("instance_id", cfg.InstanceID).Msg("connected to redis for run locking")

	return &RedisLocker{
		client:     client,
		logger:     log,
		instanceID: cfg.InstanceID,
		lease:      cfg.Lease,
	}, nil
}

// Acquire takes the named lock for the lease duration. The returned
// release func is safe to call exactly once, normally via defer.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	key := keyPrefix + name
	ok, err := l.client.SetNX(ctx, key, l.instanceID, l.lease).Result()
	if err != nil {
		telemetry.RunLockAcquisitionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		telemetry.RunLockAcquisitionsTotal.WithLabelValues("held").Inc()
		return nil, ErrLockHeld
	}
	telemetry.RunLockAcquisitionsTotal.WithLabelValues("acquired").Inc()

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(ctx, releaseScript, []string{key}, l.instanceID).Err(); err != nil {
			l.logger.Error().Err(err).Str("lock", name).Msg("release run lock")
		}
	}
	return release, nil
}

// Close releases the redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// Noop is the locker used without redis: acquisition always succeeds.
type Noop struct{}

// Acquire implements Locker.
func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
