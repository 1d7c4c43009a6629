package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/allocation"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/naming"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
	"github.com/aniket1251/opd-token-allocation-engine/shared/events"
)

// CreateInput is the validated request createToken acts on. Field-level
// validation (malformed date, unknown enum, bad phone) is the gateway's
// job (spec §7 — InvalidInput "surface from validation layer, not engine
// proper"); by the time CreateInput reaches the engine its Date/Source/
// Priority are already well-formed values.
type CreateInput struct {
	DoctorID       uuid.UUID
	Date           civildate.Date
	IdempotencyKey string
	PatientName    string
	Phone          string
	Age            int
	Notes          string
	Source         token.Source
	Priority       priority.Priority
}

// CreateResult is createToken's return shape (spec §6).
type CreateResult struct {
	Token     *token.Token
	Slot      *slot.Slot
	Displaced []*token.Token
	Message   string
}

// CreateToken implements spec §4.6. The in-process idempotency gate
// collapses concurrent identical-key callers into a single attempt; the
// storage-level check inside the transaction is the authoritative replay
// guard that survives a process restart or a second engine instance.
func (e *Engine) CreateToken(ctx context.Context, input CreateInput) (*CreateResult, error) {
	start := e.Clock.Now()
	v, _, err := e.idemGate.Do(input.IdempotencyKey, func() (interface{}, error) {
		return e.createToken(ctx, input)
	})
	e.recordOperation(ctx, "createToken", start, err)
	if err != nil {
		return nil, err
	}
	return v.(*CreateResult), nil
}

func (e *Engine) createToken(ctx context.Context, input CreateInput) (*CreateResult, error) {
	res, err := e.Orchestrator.Run(ctx, input.DoctorID, input.Date, func(ctx context.Context, tx storage.Tx) (interface{}, error) {
		replay := func(existing *token.Token) (interface{}, error) {
			res := &CreateResult{Token: existing, Message: "idempotent replay"}
			if sid, ok := existing.SlotID(); ok {
				s, err := tx.GetSlotForUpdate(ctx, sid)
				if err != nil {
					return nil, fmt.Errorf("engine: lookup replayed token slot: %w", err)
				}
				res.Slot = s
			}
			return res, nil
		}

		if existing, err := tx.GetTokenByIdempotencyKey(ctx, input.IdempotencyKey); err == nil && existing != nil {
			return replay(existing)
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("engine: lookup idempotency key: %w", err)
		}

		doc, err := tx.GetDoctor(ctx, input.DoctorID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrDoctorNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("engine: lookup doctor: %w", err)
		}
		if !doc.IsActive {
			return nil, fmt.Errorf("%w: %w", ErrDoctorNotFound, ErrDoctorInactive)
		}

		scopeKey := storage.ScopeKey(input.DoctorID, input.Date)
		displayID, err := e.Namer.Next(ctx, naming.KindToken, scopeKey)
		if err != nil {
			return nil, fmt.Errorf("engine: assign display id: %w", err)
		}

		tok := &token.Token{
			ID:             uuid.New(),
			DisplayID:      displayID,
			IdempotencyKey: input.IdempotencyKey,
			DoctorID:       input.DoctorID,
			Date:           input.Date,
			PatientName:    input.PatientName,
			Phone:          input.Phone,
			Age:            input.Age,
			Notes:          input.Notes,
			Source:         input.Source,
			Priority:       input.Priority,
			Status:         token.Waiting(),
			CreatedAt:      e.Clock.Now(),
		}

		if err := tx.InsertToken(ctx, tok); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				existing, lookupErr := tx.GetTokenByIdempotencyKey(ctx, input.IdempotencyKey)
				if lookupErr != nil {
					return nil, fmt.Errorf("engine: insert raced, re-lookup failed: %w", lookupErr)
				}
				return replay(existing)
			}
			return nil, fmt.Errorf("engine: insert token: %w", err)
		}

		allocResult, err := allocation.Allocate(ctx, tx, e.Clock, e.Location, input.DoctorID, input.Date, tok)
		if err != nil {
			return nil, fmt.Errorf("engine: allocate: %w", err)
		}

		if err := e.auditCreate(ctx, tx, tok, allocResult); err != nil {
			return nil, err
		}

		msg := "waiting"
		if allocResult.Allocated {
			msg = "allocated"
		}
		return &CreateResult{Token: tok, Slot: allocResult.Slot, Displaced: allocResult.Displaced, Message: msg}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*CreateResult), nil
}

func (e *Engine) auditCreate(ctx context.Context, tx storage.Tx, tok *token.Token, allocResult *allocation.Result) error {
	data := tokenEventData(tok)
	if err := e.Audit.Emit(ctx, tx, tok.DoctorID, tok.Date, tok.ID, events.TokenCreated, data); err != nil {
		return err
	}
	for _, victim := range allocResult.Displaced {
		if err := e.Audit.Emit(ctx, tx, tok.DoctorID, tok.Date, victim.ID, events.TokenDisplaced, tokenEventData(victim)); err != nil {
			return err
		}
	}
	return nil
}

func tokenEventData(t *token.Token) events.TokenEventData {
	data := events.TokenEventData{
		TokenID:   t.ID,
		DisplayID: t.DisplayID,
		DoctorID:  t.DoctorID,
		Date:      t.Date.String(),
		Priority:  t.Priority.String(),
		Status:    string(t.Status.Kind()),
	}
	if slotID, ok := t.SlotID(); ok {
		data.SlotID = slotID.String()
	}
	return data
}
