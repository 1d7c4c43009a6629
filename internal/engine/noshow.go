package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/allocation"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
	"github.com/aniket1251/opd-token-allocation-engine/shared/events"
)

// NoShowResult is markNoShow's return shape (spec §6).
type NoShowResult struct {
	NoShow   *token.Token
	Promoted []*token.Token
	Message  string
}

// MarkNoShow implements spec §4.8 — same shape as cancel, but only legal
// from ALLOCATED.
func (e *Engine) MarkNoShow(ctx context.Context, tokenID uuid.UUID) (*NoShowResult, error) {
	start := e.Clock.Now()
	doctorID, date, err := e.lookupScope(ctx, tokenID)
	if err != nil {
		e.recordOperation(ctx, "markNoShow", start, err)
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

		slotID, wasAllocated := tok.SlotID()
		if !wasAllocated {
			return nil, fmt.Errorf("%w: markNoShow requires ALLOCATED", ErrInvalidStatusForAction)
		}
		freedSlot, err := tx.GetSlotForUpdate(ctx, slotID)
		if err != nil {
			return nil, fmt.Errorf("engine: lookup freed slot: %w", err)
		}

		if err := tok.MarkNoShow(e.Clock.Now()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStatusForAction, err)
		}
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return nil, fmt.Errorf("engine: persist no-show token: %w", err)
		}
		if err := e.Audit.Emit(ctx, tx, tok.DoctorID, tok.Date, tok.ID, events.TokenNoShow, tokenEventData(tok)); err != nil {
			return nil, err
		}

		var promoted []*token.Token
		if !freedSlot.HasEnded(e.Clock, e.Location) {
			promoted, err = allocation.Backfill(ctx, tx, e.Clock, e.Location, tok.DoctorID, tok.Date, freedSlot)
			if err != nil {
				return nil, fmt.Errorf("engine: backfill after no-show: %w", err)
			}
			for _, p := range promoted {
				if err := e.Audit.Emit(ctx, tx, tok.DoctorID, tok.Date, p.ID, events.TokenReallocated, tokenEventData(p)); err != nil {
					return nil, err
				}
			}
		}

		return &NoShowResult{NoShow: tok, Promoted: promoted, Message: "no_show"}, nil
	})
	e.recordOperation(ctx, "markNoShow", start, err)
	if err != nil {
		return nil, err
	}
	return res.(*NoShowResult), nil
}
