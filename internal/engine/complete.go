package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/shared/events"
)

// CompleteToken implements spec §4.9 — terminal, no reallocation.
func (e *Engine) CompleteToken(ctx context.Context, tokenID uuid.UUID) error {
	start := e.Clock.Now()
	doctorID, date, err := e.lookupScope(ctx, tokenID)
	if err != nil {
		e.recordOperation(ctx, "completeToken", start, err)
		return err
	}

	_, err = e.Orchestrator.Run(ctx, doctorID, date, func(ctx context.Context, tx storage.Tx) (interface{}, error) {
		tok, err := tx.GetToken(ctx, tokenID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("engine: lookup token: %w", err)
		}

		if err := tok.Complete(e.Clock.Now()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStatusForAction, err)
		}
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return nil, fmt.Errorf("engine: persist completed token: %w", err)
		}
		if err := e.Audit.Emit(ctx, tx, tok.DoctorID, tok.Date, tok.ID, events.TokenCompleted, tokenEventData(tok)); err != nil {
			return nil, err
		}
		return nil, nil
	})
	e.recordOperation(ctx, "completeToken", start, err)
	return err
}
