package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/allocation"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
	"github.com/aniket1251/opd-token-allocation-engine/shared/events"
)

// CancelResult is cancelToken's return shape (spec §6).
type CancelResult struct {
	Cancelled *token.Token
	Promoted  []*token.Token
	Message   string
}

// CancelToken implements spec §4.7.
func (e *Engine) CancelToken(ctx context.Context, tokenID uuid.UUID, reason string) (*CancelResult, error) {
	start := e.Clock.Now()
	doctorID, date, err := e.lookupScope(ctx, tokenID)
	if err != nil {
		e.recordOperation(ctx, "cancelToken", start, err)
		return nil, err
	}

	res, err := e.Orchestrator.Run(ctx, doctorID, date, func(ctx context.Context, tx storage.Tx) (interface{}, error) {
		tok, err := tx.GetToken(ctx, tokenID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("engine: lookup token: %w", err)
		}

		switch tok.Status.Kind() {
		case token.KindCancelled:
			return nil, ErrAlreadyCancelled
		case token.KindCompleted:
			return nil, ErrCannotCancelCompleted
		}

		var freedSlot *slot.Slot
		if freedSlotID, wasAllocated := tok.SlotID(); wasAllocated {
			freedSlot, err = tx.GetSlotForUpdate(ctx, freedSlotID)
			if err != nil {
				return nil, fmt.Errorf("engine: lookup freed slot: %w", err)
			}
		}

		if err := tok.Cancel(e.Clock.Now(), reason); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStatusForAction, err)
		}
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return nil, fmt.Errorf("engine: persist cancelled token: %w", err)
		}
		cancelData := tokenEventData(tok)
		cancelData.Reason = reason
		if freedSlot != nil && freedSlot.HasEnded(e.Clock, e.Location) {
			cancelData.Reason = "Slot already ended"
		}
		if err := e.Audit.Emit(ctx, tx, tok.DoctorID, tok.Date, tok.ID, events.TokenCancelled, cancelData); err != nil {
			return nil, err
		}

		var promoted []*token.Token
		if freedSlot != nil && !freedSlot.HasEnded(e.Clock, e.Location) {
			promoted, err = allocation.Backfill(ctx, tx, e.Clock, e.Location, tok.DoctorID, tok.Date, freedSlot)
			if err != nil {
				return nil, fmt.Errorf("engine: backfill after cancel: %w", err)
			}
			for _, p := range promoted {
				if err := e.Audit.Emit(ctx, tx, tok.DoctorID, tok.Date, p.ID, events.TokenReallocated, tokenEventData(p)); err != nil {
					return nil, err
				}
			}
		}

		return &CancelResult{Cancelled: tok, Promoted: promoted, Message: "cancelled"}, nil
	})
	e.recordOperation(ctx, "cancelToken", start, err)
	if err != nil {
		return nil, err
	}
	return res.(*CancelResult), nil
}
