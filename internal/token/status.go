package token

import (
	"time"

	"github.com/google/uuid"
)

// Status is a closed tagged variant over the six token states (spec §9:
// "model this at the type level... rather than nullable fields and runtime
// assertions"). Only the Allocated variant carries a slot payload, so a
// terminal or WAITING token cannot carry a stale slotId by construction —
// there is no field to read it from.
type Status interface {
	Kind() Kind
	isStatus()
}

// Kind names a Status variant for switches, storage mapping, and audit
// payloads, without exposing the variant's own (possibly absent) payload.
type Kind string

const (
	KindWaiting   Kind = "WAITING"
	KindAllocated Kind = "ALLOCATED"
	KindCompleted Kind = "COMPLETED"
	KindCancelled Kind = "CANCELLED"
	KindNoShow    Kind = "NO_SHOW"
	KindExpired   Kind = "EXPIRED"
)

func (k Kind) IsTerminal() bool {
	switch k {
	case KindCompleted, KindCancelled, KindNoShow, KindExpired:
		return true
	default:
		return false
	}
}

type waitingStatus struct{}

func (waitingStatus) Kind() Kind { return KindWaiting }
func (waitingStatus) isStatus()  {}

// Waiting is the initial and displacement-return status.
func Waiting() Status { return waitingStatus{} }

type allocatedStatus struct {
	slotID      uuid.UUID
	allocatedAt time.Time
}

func (allocatedStatus) Kind() Kind { return KindAllocated }
func (allocatedStatus) isStatus()  {}

// Allocated is the only variant carrying a slot payload.
func Allocated(slotID uuid.UUID, at time.Time) Status {
	return allocatedStatus{slotID: slotID, allocatedAt: at}
}

// SlotOf extracts the slot payload from an Allocated status. ok is false
// for every other variant — the spec's "slotId ≠ null ⇔ status = ALLOCATED"
// invariant expressed as a type assertion instead of a nil check.
func SlotOf(s Status) (slotID uuid.UUID, allocatedAt time.Time, ok bool) {
	a, ok := s.(allocatedStatus)
	if !ok {
		return uuid.Nil, time.Time{}, false
	}
	return a.slotID, a.allocatedAt, true
}

type completedStatus struct{ completedAt time.Time }

func (completedStatus) Kind() Kind { return KindCompleted }
func (completedStatus) isStatus()  {}

func Completed(at time.Time) Status { return completedStatus{completedAt: at} }

func CompletedAt(s Status) (time.Time, bool) {
	c, ok := s.(completedStatus)
	return c.completedAt, ok
}

type cancelledStatus struct {
	cancelledAt time.Time
	reason      string
}

func (cancelledStatus) Kind() Kind { return KindCancelled }
func (cancelledStatus) isStatus()  {}

func Cancelled(at time.Time, reason string) Status {
	return cancelledStatus{cancelledAt: at, reason: reason}
}

func CancelledAt(s Status) (time.Time, string, bool) {
	c, ok := s.(cancelledStatus)
	return c.cancelledAt, c.reason, ok
}

type noShowStatus struct{ at time.Time }

func (noShowStatus) Kind() Kind { return KindNoShow }
func (noShowStatus) isStatus()  {}

func NoShow(at time.Time) Status { return noShowStatus{at: at} }

type expiredStatus struct{ at time.Time }

func (expiredStatus) Kind() Kind { return KindExpired }
func (expiredStatus) isStatus()  {}

func Expired(at time.Time) Status { return expiredStatus{at: at} }
