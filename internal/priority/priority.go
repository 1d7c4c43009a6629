// Package priority implements the total order over token priorities and the
// comparator used both to pick the next candidate for a slot and, inverted,
// to pick a displacement victim (spec §4.1). The comparator shape mirrors
// the price-then-time ordering in the teacher's order book heap
// (pkg/slotqueue, adapted from pkg/orderbook/book.go's orderHeap.Less).
package priority

import (
	"errors"
	"time"
)

// Priority is a total order: lower value is higher clinical/commercial
// urgency. The numeric gaps are deliberate — inserting a priority between
// two existing ones later does not require renumbering the rest.
type Priority int

const (
	Emergency Priority = 10
	Paid      Priority = 20
	FollowUp  Priority = 30
	Online    Priority = 40
	Walkin    Priority = 50
)

var ErrUnknownPriority = errors.New("unknown priority")

func (p Priority) String() string {
	switch p {
	case Emergency:
		return "EMERGENCY"
	case Paid:
		return "PAID"
	case FollowUp:
		return "FOLLOWUP"
	case Online:
		return "ONLINE"
	case Walkin:
		return "WALKIN"
	default:
		return "UNKNOWN"
	}
}

// Parse converts the wire-format name into a Priority.
func Parse(s string) (Priority, error) {
	switch s {
	case "EMERGENCY":
		return Emergency, nil
	case "PAID":
		return Paid, nil
	case "FOLLOWUP":
		return FollowUp, nil
	case "ONLINE":
		return Online, nil
	case "WALKIN":
		return Walkin, nil
	default:
		return 0, ErrUnknownPriority
	}
}

// Item is anything that can be ordered by priority-then-arrival: the
// interface allocation and pkg/slotqueue operate over, so neither package
// needs to import the token package directly.
type Item interface {
	ItemPriority() Priority
	ItemCreatedAt() time.Time
}

// CandidateLess orders by ascending urgency (best candidate first), tied
// FIFO by createdAt: the order allocate() scans the waiting queue in.
func CandidateLess(a, b Item) bool {
	if a.ItemPriority() != b.ItemPriority() {
		return a.ItemPriority() < b.ItemPriority()
	}
	return a.ItemCreatedAt().Before(b.ItemCreatedAt())
}

// VictimLess orders by descending urgency (worst occupant first), tied
// oldest-first: the order a full slot's occupants are evicted in (spec
// §4.1 — "numerically highest priority value; among equals, the oldest
// createdAt is evicted").
func VictimLess(a, b Item) bool {
	if a.ItemPriority() != b.ItemPriority() {
		return a.ItemPriority() > b.ItemPriority()
	}
	return a.ItemCreatedAt().Before(b.ItemCreatedAt())
}

// PickVictim returns the occupant VictimLess ranks first. occupants must be
// non-empty. A full slot's occupant count is bounded by its capacity, which
// in real OPD schedules is small (single digits), so a linear scan is the
// right tool here — no heap needed for this one-shot selection.
func PickVictim(occupants []Item) Item {
	victim := occupants[0]
	for _, o := range occupants[1:] {
		if VictimLess(o, victim) {
			victim = o
		}
	}
	return victim
}
