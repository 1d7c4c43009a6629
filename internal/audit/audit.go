// Package audit appends one event per token/slot state change and
// publishes it over NATS. Grounded on internal/positions/tracker.go's
// append-only events []PositionEvent plus lastSeqNum counter, combined
// with pkg/messaging's publish call — generalized from an in-memory slice
// to storage-backed per-doctor-date sequence numbers (via the same
// NextSequence counter the naming collaborator uses) so the audit trail
// survives a restart.
//
// Publishing is best-effort and non-transactional: a publish failure is
// logged and swallowed rather than propagated, so an audit-transport
// outage never rolls back the business transaction that already committed
// (REDESIGN FLAGS).
package audit

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/messaging"
	"github.com/aniket1251/opd-token-allocation-engine/shared/events"
)

const subjectPrefix = "opd.audit"

// SubjectWildcard matches every audit event subject this package publishes
// under, for a consumer that wants the full trail regardless of operation.
const SubjectWildcard = subjectPrefix + ".*"

const sequenceKind = "AUDIT"

// Emitter publishes audit events for token and slot state changes.
type Emitter struct {
	nats *messaging.Client
}

func NewEmitter(nats *messaging.Client) *Emitter {
	return &Emitter{nats: nats}
}

// Emit assigns the next sequence number for (doctorID, date) within tx and
// publishes the event. Sequence assignment happens inside the caller's
// storage transaction, so it is never skipped or duplicated even if the
// publish afterward fails.
func (e *Emitter) Emit(ctx context.Context, tx storage.Tx, doctorID uuid.UUID, date civildate.Date, aggregateID uuid.UUID, eventType string, data interface{}) error {
	scopeKey := storage.ScopeKey(doctorID, date)
	seq, err := tx.NextSequence(ctx, sequenceKind, scopeKey)
	if err != nil {
		return fmt.Errorf("audit: next sequence: %w", err)
	}

	evt, err := events.NewEvent(eventType, aggregateID, "token", seq, data, events.Metadata{Source: "opd-allocator"})
	if err != nil {
		return fmt.Errorf("audit: build event: %w", err)
	}

	subject := subjectPrefix + "." + eventType
	if err := e.nats.Publish(ctx, subject, evt); err != nil {
		log.Printf("audit: publish failed for event_type=%s aggregate=%s: %v (continuing)", eventType, aggregateID, err)
	}
	return nil
}
