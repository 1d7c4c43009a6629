package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/cache"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
)

// SnapshotLoader rebuilds a cache.DoctorDateSnapshot straight from storage
// on a cache miss. It opens its own read-only transaction rather than
// reusing Orchestrator.Run, since a projection read never needs the
// advisory lock or retry-on-conflict behavior the write path requires
// (spec §2 — "refreshed... without touching the transactional path").
type SnapshotLoader struct {
	Store    storage.Store
	Clock    clock.Clock
	Location *time.Location
}

func NewSnapshotLoader(store storage.Store, clk clock.Clock, loc *time.Location) *SnapshotLoader {
	return &SnapshotLoader{Store: store, Clock: clk, Location: loc}
}

func (l *SnapshotLoader) Load(ctx context.Context, doctorID uuid.UUID, date civildate.Date) (*cache.DoctorDateSnapshot, error) {
	tx, err := l.Store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: snapshot begin tx: %w", err)
	}
	defer tx.Rollback()

	slots, err := tx.ListActiveSlotsForDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("engine: snapshot list slots: %w", err)
	}

	snap := &cache.DoctorDateSnapshot{
		DoctorID: doctorID,
		Date:     date.String(),
	}

	for _, s := range slots {
		occupants, err := tx.ListAllocatedTokensForSlot(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("engine: snapshot list occupants: %w", err)
		}
		allocated, paid, followUp := storage.CountsForSlot(occupants)
		snap.Slots = append(snap.Slots, cache.SlotSnapshot{
			SlotID:     s.ID,
			DisplayID:  s.DisplayID,
			Capacity:   s.Capacity,
			Allocated:  allocated,
			PaidCount:  paid,
			FollowUp:   followUp,
			IsImminent: s.IsImminent(l.Clock, l.Location),
		})
	}

	waiting, err := tx.ListWaitingTokensForDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("engine: snapshot list waiting: %w", err)
	}
	snap.WaitingCount = len(waiting)

	return snap, nil
}
