package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published to the audit trail. Values are the audit operation
// names verbatim, plus TOKEN_REALLOCATED for each token a backfill
// promotes, so the published NATS subject (opd.audit.<value>) reads the
// same vocabulary end to end.
const (
	TokenCreated     = "CREATE_TOKEN"
	TokenDisplaced   = "EMERGENCY_DISPLACEMENT"
	TokenReallocated = "TOKEN_REALLOCATED"
	TokenCancelled   = "CANCEL_TOKEN"
	TokenNoShow      = "NO_SHOW"
	TokenCompleted   = "COMPLETE_TOKEN"
	TokenExpired     = "EXPIRE_TOKENS"
)

// BaseEvent contains common event fields for every published event.
type BaseEvent struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SequenceNum   int64           `json:"sequence_num"`
	Data          json.RawMessage `json:"data"`
	Metadata      Metadata        `json:"metadata"`
}

// Metadata contains event metadata.
type Metadata struct {
	CorrelationID string            `json:"correlation_id"`
	CausationID   string            `json:"causation_id"`
	ActorID       string            `json:"actor_id,omitempty"`
	Source        string            `json:"source"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// TokenEventData is the payload for every per-token audit event; the
// EXPIRE_TOKENS event carries a doctor/date/count map instead.
type TokenEventData struct {
	TokenID   uuid.UUID `json:"token_id"`
	DisplayID string    `json:"display_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	SlotID    string    `json:"slot_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// SlotBackfillData records which token was pulled from the waiting queue
// to fill a freed seat. No event type above carries it; backfill
// promotions are published as TOKEN_REALLOCATED with TokenEventData.
type SlotBackfillData struct {
	SlotID        uuid.UUID `json:"slot_id"`
	SlotDisplayID string    `json:"slot_display_id"`
	TokenID       uuid.UUID `json:"token_id"`
	TokenDisplay  string    `json:"token_display_id"`
}

// NewEvent builds an event with the given sequence number, marshaling data
// into the Data field.
func NewEvent(eventType string, aggregateID uuid.UUID, aggregateType string, sequenceNum int64, data interface{}, metadata Metadata) (*BaseEvent, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &BaseEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     time.Now(),
		SequenceNum:   sequenceNum,
		Data:          dataBytes,
		Metadata:      metadata,
	}, nil
}

// ParseData parses event data into the given type.
func (e *BaseEvent) ParseData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// WithCorrelation sets correlation and causation IDs.
func (m *Metadata) WithCorrelation(correlationID, causationID string) *Metadata {
	m.CorrelationID = correlationID
	m.CausationID = causationID
	return m
}
