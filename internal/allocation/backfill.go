package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/slotqueue"
)

// Backfill runs spec §4.5 after a token leaves ALLOCATED via cancel/no-show,
// trying to fill the seat it left behind (or any other active future seat —
// Allocate re-evaluates everything, so a promoted token is not pinned to
// freedSlot). Returns every token promoted out of WAITING.
func Backfill(ctx context.Context, tx storage.Tx, clk clock.Clock, loc *time.Location, doctorID uuid.UUID, date civildate.Date, freedSlot *slot.Slot) ([]*token.Token, error) {
	if freedSlot.HasEnded(clk, loc) {
		return nil, nil
	}

	imminent := freedSlot.IsImminent(clk, loc)

	candidates, err := waitingCandidates(ctx, tx, doctorID, date, imminent)
	if err != nil {
		return nil, err
	}
	if imminent && len(candidates) == 0 {
		// Fallback: no walk-ins waiting, so the walk-in preference would
		// otherwise leave an imminent seat empty needlessly.
		candidates, err = waitingCandidates(ctx, tx, doctorID, date, false)
		if err != nil {
			return nil, err
		}
	}

	var promoted []*token.Token
	for _, cand := range candidates {
		result, err := Allocate(ctx, tx, clk, loc, doctorID, date, cand)
		if err != nil {
			return promoted, err
		}
		if result.Allocated {
			promoted = append(promoted, cand)
		}
	}
	return promoted, nil
}

// waitingCandidates loads the WAITING queue for (doctorID, date), optionally
// restricted to walk-ins, ordered by priority then arrival (spec §4.5 step
// 3). Ordering goes through pkg/slotqueue rather than a one-off sort since
// that is the same candidate ordering the heap there is built for.
func waitingCandidates(ctx context.Context, tx storage.Tx, doctorID uuid.UUID, date civildate.Date, walkinOnly bool) ([]*token.Token, error) {
	all, err := tx.ListWaitingTokensForDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("allocation: list waiting tokens: %w", err)
	}

	q := slotqueue.New()
	for _, t := range all {
		if walkinOnly && t.Source != token.Walkin {
			continue
		}
		q.Push(t)
	}

	items := q.Items()
	candidates := make([]*token.Token, len(items))
	for i, it := range items {
		candidates[i] = it.(*token.Token)
	}
	return candidates, nil
}
