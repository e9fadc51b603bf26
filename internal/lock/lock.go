// Package lock serializes writers per key.
//
// The ledger service wraps every validate-then-append sequence for a group
// in WithLock(ctx, GroupKey(id), fn), so two writers on the same group never
// interleave while writers on different groups run in parallel.
//
// Two implementations exist:
//
//	lock.NewLocal()             // one process
//	lock.NewRedis(client, opts) // many replicas, RedLock via redsync
package lock

import (
	"context"
	"errors"
)

// Locker runs fn while holding the exclusive lock for key.
//
// When the lock cannot be obtained the returned error matches
// apperr.ErrConflict, or is ctx.Err() if ctx ended first. Errors from fn are
// returned unchanged.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ErrEmptyKey is returned for a blank lock key.
var ErrEmptyKey = errors.New("lock key cannot be empty")

// GroupKey is the lock key guarding a group's ledger and member list.
func GroupKey(groupID string) string {
	return "group:" + groupID
}
