// Package token models a patient's claim on a doctor for a date (spec §3)
// and the state machine governing its transitions (spec §4.3). Generalized
// from internal/orders/service.go's Order struct and plain string Status,
// replacing the latter with the closed variant in status.go.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
)

// Source is the origin channel — independent of Priority (spec glossary).
type Source string

const (
	Walkin Source = "WALKIN"
	Online Source = "ONLINE"
)

var ErrUnknownSource = errors.New("unknown source")

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case Walkin, Online:
		return Source(s), nil
	default:
		return "", ErrUnknownSource
	}
}

var ErrInvalidStatus = errors.New("invalid status transition")

// Token is a patient's claim on a doctor for a date.
type Token struct {
	ID             uuid.UUID
	DisplayID      string
	IdempotencyKey string
	DoctorID       uuid.UUID
	Date           civildate.Date

	PatientName string
	Phone       string
	Age         int
	Notes       string

	Source   Source
	Priority priority.Priority
	Status   Status

	CreatedAt time.Time
}

// ItemPriority and ItemCreatedAt satisfy priority.Item, letting allocation
// and pkg/slotqueue order *Token values without importing this package.
func (t *Token) ItemPriority() priority.Priority { return t.Priority }
func (t *Token) ItemCreatedAt() time.Time        { return t.CreatedAt }

// SlotID returns the token's current slot, if any.
func (t *Token) SlotID() (uuid.UUID, bool) {
	id, _, ok := SlotOf(t.Status)
	return id, ok
}

func transitionError(from Kind, to Kind) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, from, to)
}

// Allocate binds the token to slotID. Legal from WAITING only — this is the
// only path that produces an Allocated status.
func (t *Token) Allocate(slotID uuid.UUID, now time.Time) error {
	if t.Status.Kind() != KindWaiting {
		return transitionError(t.Status.Kind(), KindAllocated)
	}
	t.Status = Allocated(slotID, now)
	return nil
}

// Displace evicts an ALLOCATED token back to WAITING to make room for a
// higher-priority incoming token (spec §4.4 step 5). Distinct from Cancel:
// the table in spec §4.3 allows ALLOCATED -> WAITING only for displacement,
// never as a general-purpose "un-allocate."
func (t *Token) Displace() error {
	if t.Status.Kind() != KindAllocated {
		return transitionError(t.Status.Kind(), KindWaiting)
	}
	t.Status = Waiting()
	return nil
}

// Cancel is legal from WAITING or ALLOCATED.
func (t *Token) Cancel(now time.Time, reason string) error {
	switch t.Status.Kind() {
	case KindWaiting, KindAllocated:
		t.Status = Cancelled(now, reason)
		return nil
	default:
		return transitionError(t.Status.Kind(), KindCancelled)
	}
}

// MarkNoShow is legal only from ALLOCATED.
func (t *Token) MarkNoShow(now time.Time) error {
	if t.Status.Kind() != KindAllocated {
		return transitionError(t.Status.Kind(), KindNoShow)
	}
	t.Status = NoShow(now)
	return nil
}

// Complete is legal only from ALLOCATED.
func (t *Token) Complete(now time.Time) error {
	if t.Status.Kind() != KindAllocated {
		return transitionError(t.Status.Kind(), KindCompleted)
	}
	t.Status = Completed(now)
	return nil
}

// Expire is legal only from WAITING (spec §4.10 — bulk expiry of WAITING
// tokens only).
func (t *Token) Expire(now time.Time) error {
	if t.Status.Kind() != KindWaiting {
		return transitionError(t.Status.Kind(), KindExpired)
	}
	t.Status = Expired(now)
	return nil
}
