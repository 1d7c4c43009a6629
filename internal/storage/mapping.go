package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
)

func priorityFromInt(n int) priority.Priority {
	return priority.Priority(n)
}

// parseSourceLenient tolerates the empty string for rows written before a
// source column existed; every row this package writes itself always
// carries a valid source.
func parseSourceLenient(s string) (token.Source, error) {
	if s == "" {
		return token.Walkin, nil
	}
	return token.ParseSource(s)
}

// flattenStatus decomposes a Status into the columns tokens are stored in:
// status kind, the slot payload (only meaningful for ALLOCATED), the
// instant the status was entered, and the cancellation reason (only
// meaningful for CANCELLED).
func flattenStatus(t *token.Token) (kind token.Kind, slotID uuid.UUID, statusAt sql.NullTime, reason sql.NullString) {
	kind = t.Status.Kind()
	switch kind {
	case token.KindAllocated:
		id, at, _ := token.SlotOf(t.Status)
		slotID = id
		statusAt = sql.NullTime{Time: at, Valid: true}
	case token.KindCompleted:
		at, _ := token.CompletedAt(t.Status)
		statusAt = sql.NullTime{Time: at, Valid: true}
	case token.KindCancelled:
		at, r, _ := token.CancelledAt(t.Status)
		statusAt = sql.NullTime{Time: at, Valid: true}
		reason = sql.NullString{String: r, Valid: true}
	}
	return kind, slotID, statusAt, reason
}

// hydrateStatus rebuilds a Status from stored columns.
func hydrateStatus(kindStr string, slotID uuid.NullUUID, statusAt sql.NullTime, reason sql.NullString) (token.Status, error) {
	switch token.Kind(kindStr) {
	case token.KindWaiting:
		return token.Waiting(), nil
	case token.KindAllocated:
		if !slotID.Valid {
			return nil, fmt.Errorf("storage: allocated token missing slot_id")
		}
		return token.Allocated(slotID.UUID, statusAt.Time), nil
	case token.KindCompleted:
		return token.Completed(statusAt.Time), nil
	case token.KindCancelled:
		return token.Cancelled(statusAt.Time, reason.String), nil
	case token.KindNoShow:
		return token.NoShow(statusAt.Time), nil
	case token.KindExpired:
		return token.Expired(statusAt.Time), nil
	default:
		return nil, fmt.Errorf("storage: unknown token status kind %q", kindStr)
	}
}
