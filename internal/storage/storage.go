// Package storage is the persistence boundary for doctors, slots, and
// tokens. Grounded on internal/orders/service.go and internal/ledger/ledger.go:
// plain database/sql against Postgres (github.com/lib/pq), explicit
// BeginTx/Commit/Rollback, and SELECT ... FOR UPDATE for the row locks the
// allocation and reallocation procedures need (spec §5 option (b)).
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/doctor"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
)

// ErrNotFound is returned when a lookup by ID or key finds no row.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned by InsertToken when the unique constraint on
// idempotency_key rejects the row; createToken treats that as a replay.
// internal/txn retries any unit of work whose error wraps ErrConflict.
// The Postgres store does not map serialization failures or deadlocks to
// ErrConflict; those surface as ordinary errors and are not retried.
var ErrConflict = errors.New("storage: conflict")

// Store opens transactions against the underlying database.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)

	// ListActiveDoctors returns every doctor with isActive = true, for the
	// expiry scheduler to sweep without a caller supplying ids up front.
	ListActiveDoctors(ctx context.Context) ([]*doctor.Doctor, error)

	Close() error
}

// Tx is a single unit-of-work. All reads the allocation and reallocation
// procedures take on slots and tokens happen through the FOR-UPDATE methods
// below so the row locks taken by internal/txn's orchestrator are visible
// to other transactions for the lifetime of this one.
type Tx interface {
	GetDoctor(ctx context.Context, doctorID uuid.UUID) (*doctor.Doctor, error)

	// GetSlotForUpdate locks and returns a single slot.
	GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*slot.Slot, error)

	// ListActiveSlotsForDoctorDate locks and returns every active slot for
	// a doctor on a date, ordered by start time.
	ListActiveSlotsForDoctorDate(ctx context.Context, doctorID uuid.UUID, date civildate.Date) ([]*slot.Slot, error)

	UpdateSlot(ctx context.Context, s *slot.Slot) error

	// ListAllocatedTokensForSlot locks and returns every ALLOCATED token
	// currently bound to slotID.
	ListAllocatedTokensForSlot(ctx context.Context, slotID uuid.UUID) ([]*token.Token, error)

	// ListWaitingTokensForDoctorDate locks and returns every WAITING token
	// for a doctor on a date, in createdAt order.
	ListWaitingTokensForDoctorDate(ctx context.Context, doctorID uuid.UUID, date civildate.Date) ([]*token.Token, error)

	GetTokenByIdempotencyKey(ctx context.Context, key string) (*token.Token, error)
	GetToken(ctx context.Context, tokenID uuid.UUID) (*token.Token, error)
	InsertToken(ctx context.Context, t *token.Token) error
	UpdateToken(ctx context.Context, t *token.Token) error

	// NextSequence atomically increments and returns the counter for
	// (kind, scopeKey), creating it at 1 if absent.
	NextSequence(ctx context.Context, kind string, scopeKey string) (int64, error)

	Commit() error
	Rollback() error
}

// CountsForSlot derives capacity.Counts from a slot's current ALLOCATED
// occupants, used by the admissible predicate and tightening validation.
func CountsForSlot(occupants []*token.Token) (allocated, paid, followUp int) {
	for _, t := range occupants {
		allocated++
		switch t.Priority {
		case priority.Paid:
			paid++
		case priority.FollowUp:
			followUp++
		}
	}
	return allocated, paid, followUp
}

// ScopeKey formats the (doctorID, date) key the naming and audit sequence
// counters are scoped by.
func ScopeKey(doctorID uuid.UUID, date civildate.Date) string {
	return doctorID.String() + "|" + date.String()
}
