package slot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/capacity"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
)

func mustSlot(t *testing.T, start, end string) *slot.Slot {
	t.Helper()
	d, err := civildate.ParseDate("05-03-2026")
	require.NoError(t, err)
	st, err := civildate.ParseClockTime(start)
	require.NoError(t, err)
	et, err := civildate.ParseClockTime(end)
	require.NoError(t, err)
	return &slot.Slot{
		Date: d, StartTime: st, EndTime: et,
		Capacity: 2, PaidCap: capacity.Unlimited(), FollowUpCap: capacity.Unlimited(),
		IsActive: true,
	}
}

func fixedAt(t *testing.T, hhmm string) clock.Fixed {
	t.Helper()
	d, _ := civildate.ParseDate("05-03-2026")
	ct, err := civildate.ParseClockTime(hhmm)
	require.NoError(t, err)
	return clock.Fixed{At: ct.On(d, time.UTC)}
}

func TestValidateRejectsBackwardsWindow(t *testing.T) {
	s := mustSlot(t, "10:00", "09:00")
	assert.ErrorIs(t, s.Validate(), slot.ErrInvalidWindow)
}

func TestValidateRejectsCapAboveCapacity(t *testing.T) {
	s := mustSlot(t, "09:00", "10:00")
	s.PaidCap = capacity.Limit(5)
	assert.ErrorIs(t, s.Validate(), capacity.ErrCapBelowCapacity)
}

func TestHasEnded(t *testing.T) {
	s := mustSlot(t, "09:00", "10:00")
	assert.False(t, s.HasEnded(fixedAt(t, "09:30"), time.UTC))
	assert.True(t, s.HasEnded(fixedAt(t, "10:30"), time.UTC))
	assert.True(t, s.HasEnded(fixedAt(t, "10:00"), time.UTC), "end is exclusive of further allocation, slot ends at its own end instant")
}

func TestIsImminentWithinOneHourBeforeStart(t *testing.T) {
	s := mustSlot(t, "10:00", "11:00")
	assert.True(t, s.IsImminent(fixedAt(t, "09:30"), time.UTC)) // S3 scenario
	assert.False(t, s.IsImminent(fixedAt(t, "08:00"), time.UTC))
}

func TestIsImminentWhileInProgress(t *testing.T) {
	s := mustSlot(t, "09:00", "10:00")
	assert.True(t, s.IsImminent(fixedAt(t, "09:30"), time.UTC))
}

func TestIsImminentFalseAfterEnded(t *testing.T) {
	s := mustSlot(t, "09:00", "10:00")
	assert.False(t, s.IsImminent(fixedAt(t, "10:30"), time.UTC))
}

func TestValidateTighteningRejectsBelowCurrentCount(t *testing.T) {
	s := mustSlot(t, "09:00", "10:00")
	s.Capacity = 1
	err := s.ValidateTightening(capacity.Counts{Allocated: 2})
	assert.ErrorIs(t, err, slot.ErrCapacityBelowCurrent)
}
