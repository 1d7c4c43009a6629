// Package slot models a doctor's fixed time window on a date and the
// end/imminence predicates the allocation and reallocation procedures
// depend on (spec §3, §4.4, §4.5).
package slot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/capacity"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
)

// ImminentWindow is the "starts within" threshold from spec's Imminent
// slot glossary entry.
const ImminentWindow = time.Hour

var ErrInvalidWindow = errors.New("slot end must be after slot start")

type Slot struct {
	ID        uuid.UUID
	DisplayID string
	DoctorID  uuid.UUID
	Date      civildate.Date
	StartTime civildate.ClockTime
	EndTime   civildate.ClockTime

	Capacity    int
	PaidCap     capacity.Cap
	FollowUpCap capacity.Cap
	IsActive    bool
}

// Validate enforces the slot-level invariants from spec §3: a positive
// window, and sub-caps no larger than capacity.
func (s *Slot) Validate() error {
	if !s.StartTime.Before(s.EndTime) {
		return fmt.Errorf("%w: %s-%s", ErrInvalidWindow, s.StartTime, s.EndTime)
	}
	if s.Capacity < 1 {
		return fmt.Errorf("capacity must be >= 1, got %d", s.Capacity)
	}
	if err := s.PaidCap.ValidateAgainstCapacity(s.Capacity); err != nil {
		return err
	}
	if err := s.FollowUpCap.ValidateAgainstCapacity(s.Capacity); err != nil {
		return err
	}
	return nil
}

// ValidateTightening rejects lowering capacity or a sub-cap below counts
// already in effect (spec §8 boundary behavior, §9.3).
func (s *Slot) ValidateTightening(counts capacity.Counts) error {
	if s.Capacity < counts.Allocated {
		return fmt.Errorf("%w: new capacity=%d current allocated=%d", ErrCapacityBelowCurrent, s.Capacity, counts.Allocated)
	}
	if err := s.PaidCap.ValidateTightening(counts.Paid); err != nil {
		return err
	}
	if err := s.FollowUpCap.ValidateTightening(counts.FollowUp); err != nil {
		return err
	}
	return nil
}

var ErrCapacityBelowCurrent = errors.New("capacity tightened below current allocation count")

// StartDateTime is the slot's start instant in loc.
func (s *Slot) StartDateTime(loc *time.Location) time.Time {
	return s.StartTime.On(s.Date, loc)
}

// EndDateTime is the slot's end instant in loc.
func (s *Slot) EndDateTime(loc *time.Location) time.Time {
	return s.EndTime.On(s.Date, loc)
}

// HasEnded reports whether the slot's end time is at or before now.
func (s *Slot) HasEnded(c clock.Clock, loc *time.Location) bool {
	now := c.Now()
	return !now.Before(s.EndDateTime(loc))
}

// IsImminent reports whether the slot starts within ImminentWindow,
// including a slot already in progress but not yet ended (spec §4.5 step 2,
// glossary "Imminent slot").
func (s *Slot) IsImminent(c clock.Clock, loc *time.Location) bool {
	if s.HasEnded(c, loc) {
		return false
	}
	now := c.Now()
	start := s.StartDateTime(loc)
	if !now.Before(start) {
		// already in progress
		return true
	}
	return start.Sub(now) <= ImminentWindow
}
