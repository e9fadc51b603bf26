package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/mmynk/equalsplit/internal/apperr"
)

const keyPrefix = "equalsplit:lock:"

var _ Locker = (*Redis)(nil)

// Options tunes RedLock acquisition.
type Options struct {
	// Expiry is how long the lock is held before auto-expiring.
	Expiry time.Duration

	// Tries is the number of acquisition attempts before giving up.
	Tries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// DriftFactor accounts for clock drift between Redis nodes.
	DriftFactor float64
}

// DefaultOptions suits ledger writes, which finish well within a second.
func DefaultOptions() Options {
	return Options{
		Expiry:      10 * time.Second,
		Tries:       32,
		RetryDelay:  50 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

func (o Options) validate() error {
	var errs []error
	if o.Expiry <= 0 {
		errs = append(errs, errors.New("lock expiry must be greater than 0"))
	}
	if o.Tries < 1 {
		errs = append(errs, errors.New("lock tries must be at least 1"))
	}
	if o.RetryDelay < 0 {
		errs = append(errs, errors.New("lock retry delay cannot be negative"))
	}
	if o.DriftFactor < 0 || o.DriftFactor >= 1 {
		errs = append(errs, errors.New("lock drift factor must be in [0, 1)"))
	}
	return errors.Join(errs...)
}

// Redis is a distributed Locker using the RedLock algorithm.
type Redis struct {
	rs   *redsync.Redsync
	opts Options
}

// NewRedis creates a Redis locker on top of an existing client.
func NewRedis(client goredislib.UniversalClient, opts Options) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid lock options: %w", err)
	}
	return &Redis{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}, nil
}

// WithLock implements Locker. The lock is released even if fn panics.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	mutex := r.rs.NewMutex(
		keyPrefix+key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
		redsync.WithDriftFactor(r.opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Failed to acquire lock", "lock_key", key, "error", err)
		return apperr.Newf(apperr.ErrConflict, "could not lock %s: %v", key, err)
	}

	defer func() {
		// Unlock on a fresh context so a cancelled request still releases.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.Expiry)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			slog.Error("Failed to release lock", "lock_key", key, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}
