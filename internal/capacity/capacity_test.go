package capacity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aniket1251/opd-token-allocation-engine/internal/capacity"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
)

func TestAdmissibleEmergencyAlwaysTrue(t *testing.T) {
	c := capacity.Counts{Allocated: 10, Paid: 10, FollowUp: 10}
	assert.True(t, capacity.Admissible(priority.Emergency, 2, capacity.Unlimited(), capacity.Unlimited(), c))
}

func TestAdmissibleDeniesWhenSlotFull(t *testing.T) {
	c := capacity.Counts{Allocated: 2}
	assert.False(t, capacity.Admissible(priority.Online, 2, capacity.Unlimited(), capacity.Unlimited(), c))
}

func TestAdmissiblePaidCap(t *testing.T) {
	// S5: capacity=6, paidCap=3, 3 already paid, seats remain but cap denies.
	c := capacity.Counts{Allocated: 3, Paid: 3}
	assert.False(t, capacity.Admissible(priority.Paid, 6, capacity.Limit(3), capacity.Unlimited(), c))
	assert.True(t, capacity.Admissible(priority.Online, 6, capacity.Limit(3), capacity.Unlimited(), c))
}

func TestAdmissibleFollowUpCap(t *testing.T) {
	c := capacity.Counts{Allocated: 1, FollowUp: 1}
	assert.False(t, capacity.Admissible(priority.FollowUp, 6, capacity.Unlimited(), capacity.Limit(1), c))
}

func TestCapValidateAgainstCapacity(t *testing.T) {
	assert.NoError(t, capacity.Limit(3).ValidateAgainstCapacity(6))
	assert.ErrorIs(t, capacity.Limit(7).ValidateAgainstCapacity(6), capacity.ErrCapBelowCapacity)
	assert.NoError(t, capacity.Unlimited().ValidateAgainstCapacity(0))
}

func TestCapValidateTightening(t *testing.T) {
	assert.NoError(t, capacity.Limit(3).ValidateTightening(3))
	assert.ErrorIs(t, capacity.Limit(2).ValidateTightening(3), capacity.ErrTightenedBelowCurrent)
	assert.NoError(t, capacity.Unlimited().ValidateTightening(1000))
}

func TestCapZeroValueIsUnlimited(t *testing.T) {
	var c capacity.Cap
	assert.True(t, c.IsUnlimited())
	assert.False(t, c.Exceeded(1000))
}
