// Package capacity implements the admissible predicate (spec §4.2) and the
// Unlimited|Cap(n) sum type spec §9 calls for in place of a nullable sub-cap
// integer. The shape — a map of per-entity limits checked against live
// counts before admitting — is grounded on internal/risk/calculator.go's
// RiskLimits-vs-current-exposure checks, generalized into a pure function.
package capacity

import (
	"errors"
	"fmt"

	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
)

var ErrCapBelowCapacity = errors.New("sub-cap exceeds slot capacity")
var ErrTightenedBelowCurrent = errors.New("cap tightened below current allocation count")

// Cap is either Unlimited or a concrete Limit(n). The zero value is
// Unlimited, so a Slot literal with an unset cap field behaves correctly
// without an explicit constructor call.
type Cap struct {
	limited bool
	n       int
}

// Unlimited represents "no cap" — spec §9's explicit alternative to a
// nullable integer.
func Unlimited() Cap { return Cap{} }

// Limit represents a concrete sub-cap of n.
func Limit(n int) Cap { return Cap{limited: true, n: n} }

func (c Cap) IsUnlimited() bool { return !c.limited }

// Value reports the numeric limit and whether one is set.
func (c Cap) Value() (n int, limited bool) { return c.n, c.limited }

// Exceeded reports whether count has reached or passed the cap.
func (c Cap) Exceeded(count int) bool {
	return c.limited && count >= c.n
}

// ValidateAgainstCapacity enforces "each, if set, must be ≤ capacity" (spec §3).
func (c Cap) ValidateAgainstCapacity(capacity int) error {
	if c.limited && c.n > capacity {
		return fmt.Errorf("%w: cap=%d capacity=%d", ErrCapBelowCapacity, c.n, capacity)
	}
	return nil
}

// ValidateTightening rejects lowering the cap below a count already in
// effect (spec §8 boundary behavior, §9.3 open-question decision): the
// slot-config collaborator calls this before accepting an edit.
func (c Cap) ValidateTightening(currentCount int) error {
	if c.limited && c.n < currentCount {
		return fmt.Errorf("%w: new cap=%d current count=%d", ErrTightenedBelowCurrent, c.n, currentCount)
	}
	return nil
}

func (c Cap) String() string {
	if !c.limited {
		return "unlimited"
	}
	return fmt.Sprintf("cap(%d)", c.n)
}

// Counts are the live per-slot tallies admissible reads.
type Counts struct {
	Allocated int
	Paid      int
	FollowUp  int
}

// Admissible is the pure predicate from spec §4.2. It never mutates
// anything and never itself performs a displacement — the caller
// (allocation.Allocate) does that when this returns true for EMERGENCY
// against a full slot.
func Admissible(p priority.Priority, slotCapacity int, paidCap, followUpCap Cap, c Counts) bool {
	if p == priority.Emergency {
		return true
	}
	if c.Allocated >= slotCapacity {
		return false
	}
	if p == priority.Paid && paidCap.Exceeded(c.Paid) {
		return false
	}
	if p == priority.FollowUp && followUpCap.Exceeded(c.FollowUp) {
		return false
	}
	return true
}
