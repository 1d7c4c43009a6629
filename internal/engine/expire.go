package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/shared/events"
)

// ExpireWaiting implements spec §4.10: bulk-transitions every WAITING
// token for (doctorId, date) to EXPIRED in a single transaction. Does not
// attempt allocation. Returns the number of tokens expired.
func (e *Engine) ExpireWaiting(ctx context.Context, doctorID uuid.UUID, date civildate.Date) (int, error) {
	start := e.Clock.Now()
	res, err := e.Orchestrator.Run(ctx, doctorID, date, func(ctx context.Context, tx storage.Tx) (interface{}, error) {
		waiting, err := tx.ListWaitingTokensForDoctorDate(ctx, doctorID, date)
		if err != nil {
			return nil, fmt.Errorf("engine: list waiting tokens: %w", err)
		}

		now := e.Clock.Now()
		for _, tok := range waiting {
			if err := tok.Expire(now); err != nil {
				return nil, fmt.Errorf("engine: expire token %s: %w", tok.ID, err)
			}
			if err := tx.UpdateToken(ctx, tok); err != nil {
				return nil, fmt.Errorf("engine: persist expired token: %w", err)
			}
		}

		if len(waiting) > 0 {
			data := map[string]interface{}{"doctor_id": doctorID, "date": date.String(), "count": len(waiting)}
			if err := e.Audit.Emit(ctx, tx, doctorID, date, doctorID, events.TokenExpired, data); err != nil {
				return nil, err
			}
		}

		return len(waiting), nil
	})
	e.recordOperation(ctx, "expireWaiting", start, err)
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}
