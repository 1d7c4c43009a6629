// Package txn orchestrates a single allocation/reallocation operation:
// an advisory lock keyed on (doctorId, date) so only one operation per
// doctor-date runs at a time, a storage transaction taking the row locks
// underneath it, bounded retry on a storage conflict, and a circuit
// breaker around the storage round trip (spec §5 — row locks (b) plus
// advisory lock (c), used together rather than as alternatives).
//
// Grounded on pkg/circuit/breaker.go (reused directly) for the breaker and
// on internal/ledger.go's tx.Commit/defer tx.Rollback shape for the
// transaction lifecycle.
package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/circuit"
	"github.com/google/uuid"
)

// LockManager acquires and releases an advisory lock scoped to a key. The
// etcd-backed implementation in lock_etcd.go is the default; tests use an
// in-process stub.
type LockManager interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// ErrLockUnavailable is returned when the advisory lock could not be
// acquired before ctx's deadline (spec §7, "LockUnavailable").
var ErrLockUnavailable = errors.New("txn: advisory lock unavailable")

// RetryPolicy bounds how many times Run retries an operation that failed
// with storage.ErrConflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries up to 3 additional times with exponential
// backoff starting at 20ms — short, because the lock above already
// serializes same-doctor-date operations; a conflict under the lock means
// a concurrent reader outside of it (e.g. a read-only projection query),
// not another writer.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: 20 * time.Millisecond}

// Orchestrator runs a unit of work under the advisory lock, retrying on
// storage conflicts and tripping a circuit breaker on repeated storage
// failures.
type Orchestrator struct {
	Store    storage.Store
	Locks    LockManager
	Breakers *circuit.BreakerGroup
	Retry    RetryPolicy
}

func NewOrchestrator(store storage.Store, locks LockManager, breakers *circuit.BreakerGroup) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Locks:    locks,
		Breakers: breakers,
		Retry:    DefaultRetryPolicy,
	}
}

// LockKey formats the advisory lock key for a doctor-date.
func LockKey(doctorID uuid.UUID, date civildate.Date) string {
	return "opd-lock/" + storage.ScopeKey(doctorID, date)
}

// Fn is the unit of work Run executes inside a storage transaction.
type Fn func(ctx context.Context, tx storage.Tx) (interface{}, error)

// Run acquires the advisory lock for (doctorID, date), then runs fn inside
// a storage transaction, retrying the whole lock-and-transaction sequence
// on storage.ErrConflict up to o.Retry.MaxAttempts times.
func (o *Orchestrator) Run(ctx context.Context, doctorID uuid.UUID, date civildate.Date, fn Fn) (interface{}, error) {
	key := LockKey(doctorID, date)

	unlock, err := o.Locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	defer unlock(ctx)

	var result interface{}
	var lastErr error

	for attempt := 0; attempt < o.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := o.Retry.BaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, lastErr = o.runOnce(ctx, fn)
		if lastErr == nil {
			return result, nil
		}
		if !errors.Is(lastErr, storage.ErrConflict) {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("txn: exhausted retries: %w", lastErr)
}

func (o *Orchestrator) runOnce(ctx context.Context, fn Fn) (interface{}, error) {
	var result interface{}
	breakerErr := o.Breakers.Execute(ctx, "storage", func() error {
		tx, err := o.Store.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		result, err = fn(ctx, tx)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	return result, breakerErr
}
