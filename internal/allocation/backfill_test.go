package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/allocation"
	"github.com/aniket1251/opd-token-allocation-engine/internal/capacity"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
)

// S3 — imminent-slot walk-in preference: a later-arriving walk-in is
// promoted over an earlier-waiting online token because the freed slot
// starts within the hour.
func TestBackfillS3PrefersWalkinWhenSlotImminent(t *testing.T) {
	tx := newFakeTx()
	doctorID := uuid.New()
	base := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	clk := clock.Fixed{At: time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)}

	s := newSlot(doctorID, "10:00", "11:00", 2, capacity.Unlimited(), capacity.Unlimited())
	tx.addSlot(s)

	paid1 := allocatedToken(doctorID, s.ID, priority.Paid, base)
	online1 := allocatedToken(doctorID, s.ID, priority.Online, base.Add(time.Minute))
	tx.addToken(paid1)
	tx.addToken(online1)

	online2 := newWaitingToken(doctorID, priority.Online, token.Online, base.Add(2*time.Minute))
	walkin1 := newWaitingToken(doctorID, priority.Online, token.Walkin, base.Add(3*time.Minute))
	tx.addToken(online2)
	tx.addToken(walkin1)

	require.NoError(t, paid1.Cancel(clk.Now(), "patient cancelled"))
	require.NoError(t, tx.UpdateToken(context.Background(), paid1))

	promoted, err := allocation.Backfill(context.Background(), tx, clk, time.UTC, doctorID, testDate, s)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, walkin1.ID, promoted[0].ID)
	assert.Equal(t, token.KindWaiting, online2.Status.Kind())
}

// S3 fallback — if no walk-in is waiting, the imminent-slot preference
// falls back to the ordinary priority/arrival queue instead of leaving the
// seat empty.
func TestBackfillS3FallsBackWhenNoWalkinWaiting(t *testing.T) {
	tx := newFakeTx()
	doctorID := uuid.New()
	base := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	clk := clock.Fixed{At: time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)}

	s := newSlot(doctorID, "10:00", "11:00", 2, capacity.Unlimited(), capacity.Unlimited())
	tx.addSlot(s)

	paid1 := allocatedToken(doctorID, s.ID, priority.Paid, base)
	online1 := allocatedToken(doctorID, s.ID, priority.Online, base.Add(time.Minute))
	tx.addToken(paid1)
	tx.addToken(online1)

	online2 := newWaitingToken(doctorID, priority.Online, token.Online, base.Add(2*time.Minute))
	tx.addToken(online2)

	require.NoError(t, paid1.Cancel(clk.Now(), "patient cancelled"))
	require.NoError(t, tx.UpdateToken(context.Background(), paid1))

	promoted, err := allocation.Backfill(context.Background(), tx, clk, time.UTC, doctorID, testDate, s)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, online2.ID, promoted[0].ID)
}

// Cancellation of an already-ended slot's occupant must not trigger backfill.
func TestBackfillNoOpWhenSlotHasEnded(t *testing.T) {
	tx := newFakeTx()
	doctorID := uuid.New()
	base := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	clk := clock.Fixed{At: time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)}

	s := newSlot(doctorID, "09:00", "10:00", 2, capacity.Unlimited(), capacity.Unlimited())
	tx.addSlot(s)

	waiting := newWaitingToken(doctorID, priority.Walkin, token.Walkin, base)
	tx.addToken(waiting)

	promoted, err := allocation.Backfill(context.Background(), tx, clk, time.UTC, doctorID, testDate, s)
	require.NoError(t, err)
	assert.Empty(t, promoted)
	assert.Equal(t, token.KindWaiting, waiting.Status.Kind())
}
