// Package allocation implements the allocation and backfill procedures
// (spec §4.4, §4.5): placing a WAITING token into the earliest admissible
// active slot, where an EMERGENCY token that reaches a full slot first
// displaces an occupant there even if a later slot still has room, and
// re-running placement for anyone displaced or freed up.
//
// Grounded on internal/matching/engine.go's processBook/processTrade loop
// (scan live state, mutate, publish) restructured around the capacity
// predicate and priority comparator instead of price-time order matching.
// Every read here is a storage call inside the caller's transaction, not an
// in-memory cache, because correctness depends on seeing the effect of any
// prior placement in the same transaction (spec §5 — "the second
// transaction observes the committed state of the first").
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/capacity"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/slotqueue"
)

// Result reports the outcome of Allocate for the token it was called with.
// Displaced lists every token that was evicted from a slot to make room —
// in practice at most one, since an EMERGENCY-admitted token can never
// itself become a displacement victim (spec §4.4 termination note).
type Result struct {
	Allocated bool
	Token     *token.Token
	Slot      *slot.Slot
	Displaced []*token.Token
}

// Allocate runs spec §4.4 for tok, which must be WAITING. It is iterative,
// not recursive: a displacement produces at most one victim, and that
// victim is re-queued through the same placement loop as a second pass
// rather than through a nested function call, so a transaction's call
// stack depth never grows with the number of displacements (spec §9.2).
func Allocate(ctx context.Context, tx storage.Tx, clk clock.Clock, loc *time.Location, doctorID uuid.UUID, date civildate.Date, tok *token.Token) (*Result, error) {
	result := &Result{Token: tok}

	pending := []*token.Token{tok}
	first := true
	for len(pending) > 0 {
		cur := pending[0]
		pending = pending[1:]

		placedSlot, victim, err := placeOne(ctx, tx, clk, loc, doctorID, date, cur)
		if err != nil {
			return nil, err
		}
		if first {
			result.Allocated = placedSlot != nil
			result.Slot = placedSlot
			first = false
		}
		if victim != nil {
			result.Displaced = append(result.Displaced, victim)
			pending = append(pending, victim)
		}
	}
	return result, nil
}

// placeOne scans active future slots for doctorID/date in startTime order
// and admits tok into the first admissible one, displacing a victim if the
// slot is full and tok is EMERGENCY. It returns the slot tok landed in (nil
// if none did) and the victim it displaced (nil if none).
func placeOne(ctx context.Context, tx storage.Tx, clk clock.Clock, loc *time.Location, doctorID uuid.UUID, date civildate.Date, tok *token.Token) (*slot.Slot, *token.Token, error) {
	slots, err := tx.ListActiveSlotsForDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, nil, fmt.Errorf("allocation: list active slots: %w", err)
	}

	for _, s := range slots {
		if s.HasEnded(clk, loc) {
			continue
		}

		occupants, err := tx.ListAllocatedTokensForSlot(ctx, s.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("allocation: list occupants: %w", err)
		}
		allocated, paid, followUp := storage.CountsForSlot(occupants)
		counts := capacity.Counts{Allocated: allocated, Paid: paid, FollowUp: followUp}

		if !capacity.Admissible(tok.Priority, s.Capacity, s.PaidCap, s.FollowUpCap, counts) {
			continue
		}

		if allocated < s.Capacity {
			if err := tok.Allocate(s.ID, clk.Now()); err != nil {
				return nil, nil, fmt.Errorf("allocation: allocate token: %w", err)
			}
			if err := tx.UpdateToken(ctx, tok); err != nil {
				return nil, nil, fmt.Errorf("allocation: persist token: %w", err)
			}
			return s, nil, nil
		}

		// Slot is full. admissible() above only returns true here when tok
		// is EMERGENCY (capacity.Admissible step 1), so a displacement is
		// always legal at this point.
		victim := pickVictim(occupants)
		if err := victim.Displace(); err != nil {
			return nil, nil, fmt.Errorf("allocation: displace victim: %w", err)
		}
		if err := tx.UpdateToken(ctx, victim); err != nil {
			return nil, nil, fmt.Errorf("allocation: persist displaced victim: %w", err)
		}
		if err := tok.Allocate(s.ID, clk.Now()); err != nil {
			return nil, nil, fmt.Errorf("allocation: allocate displacing token: %w", err)
		}
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return nil, nil, fmt.Errorf("allocation: persist token: %w", err)
		}
		return s, victim, nil
	}

	return nil, nil, nil
}

func pickVictim(occupants []*token.Token) *token.Token {
	items := make([]priority.Item, len(occupants))
	for i, o := range occupants {
		items[i] = o
	}
	return slotqueue.PickVictim(items).(*token.Token)
}
