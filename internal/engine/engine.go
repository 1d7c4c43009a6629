// Package engine is the facade exposing the five operations spec §6 names
// (createToken, cancelToken, markNoShow, completeToken, expireWaiting),
// wiring the transaction orchestrator, naming, audit, and metrics
// collaborators around the pure internal/allocation procedures. Grounded
// on internal/matching/engine.go's Engine struct shape — collaborators
// assembled once in a constructor, methods reading purely off them — with
// the order book and in-memory maps replaced by the storage/txn boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/audit"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/idempotency"
	"github.com/aniket1251/opd-token-allocation-engine/internal/metrics"
	"github.com/aniket1251/opd-token-allocation-engine/internal/naming"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/txn"
)

// Engine wires every collaborator the five operations need. All state
// beyond these collaborator handles lives in the database; there is no
// package-level or Engine-level mutable cache of tokens/slots (spec §5
// "Shared mutable state... none in process beyond the snapshot cache").
type Engine struct {
	Orchestrator *txn.Orchestrator
	Namer        naming.Namer
	Audit        *audit.Emitter
	Metrics      metrics.Sink
	Clock        clock.Clock
	Location     *time.Location
	idemGate     *idempotency.Gate
}

// New assembles an Engine. metricsSink may be metrics.NoopSink{} when
// telemetry is disabled.
func New(orch *txn.Orchestrator, namer naming.Namer, auditor *audit.Emitter, metricsSink metrics.Sink, clk clock.Clock, loc *time.Location) *Engine {
	return &Engine{
		Orchestrator: orch,
		Namer:        namer,
		Audit:        auditor,
		Metrics:      metricsSink,
		Clock:        clk,
		Location:     loc,
		idemGate:     idempotency.NewGate(),
	}
}

func (e *Engine) recordOperation(ctx context.Context, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.Metrics.RecordOperation(ctx, operation, time.Since(start), outcome)
}

// lookupScope resolves the (doctorId, date) an existing token belongs to,
// so the caller can acquire the right advisory lock before doing any
// locked work. Cancel/no-show/complete are addressed by token id alone
// (spec §6), so this one-off unlocked read happens first; the token's
// doctorId/date never change after creation, so reading them outside the
// lock is safe — the locked transaction that follows re-reads and locks
// the token itself before mutating it.
func (e *Engine) lookupScope(ctx context.Context, tokenID uuid.UUID) (doctorID uuid.UUID, date civildate.Date, err error) {
	tx, err := e.Orchestrator.Store.BeginTx(ctx)
	if err != nil {
		return uuid.Nil, civildate.Date{}, fmt.Errorf("engine: begin scope lookup: %w", err)
	}
	defer tx.Rollback()

	tok, err := tx.GetToken(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, civildate.Date{}, ErrTokenNotFound
	}
	if err != nil {
		return uuid.Nil, civildate.Date{}, fmt.Errorf("engine: lookup token scope: %w", err)
	}
	return tok.DoctorID, tok.Date, nil
}
