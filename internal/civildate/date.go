// Package civildate implements the boundary date/time formats from spec §6:
// dates as DD-MM-YYYY with an implicit 00:00 local time-of-day, and
// HH:MM 24-hour clock times for slot boundaries.
package civildate

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "02-01-2006"

var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar date with no time-of-day component. Two Dates compare
// equal regardless of the time zone used to construct them.
type Date struct {
	year  int
	month time.Month
	day   int
}

// ParseDate parses the DD-MM-YYYY wire format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %s", ErrInvalidDate, s)
	}
	return Date{year: t.Year(), month: t.Month(), day: t.Day()}, nil
}

// FromTime drops the time-of-day from t, in t's own zone.
func FromTime(t time.Time) Date {
	return Date{year: t.Year(), month: t.Month(), day: t.Day()}
}

func (d Date) String() string {
	return fmt.Sprintf("%02d-%02d-%04d", d.day, int(d.month), d.year)
}

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool { return d.year == 0 && d.month == 0 && d.day == 0 }

// Equal reports whether d and o denote the same calendar day.
func (d Date) Equal(o Date) bool {
	return d.year == o.year && d.month == o.month && d.day == o.day
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.midnight(time.UTC).Before(o.midnight(time.UTC))
}

// midnight returns 00:00 on d in loc.
func (d Date) midnight(loc *time.Location) time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)
}

// In returns 00:00 on d in loc — the canonical representation spec §6
// requires internally.
func (d Date) In(loc *time.Location) time.Time {
	return d.midnight(loc)
}

// ClockTime is a 24-hour HH:MM wall-clock time, used for slot boundaries.
type ClockTime struct {
	Hour   int
	Minute int
}

var ErrInvalidTime = errors.New("invalid time")

// ParseClockTime parses the HH:MM wire format.
func ParseClockTime(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%2d:%2d", &h, &m); err != nil {
		return ClockTime{}, fmt.Errorf("%w: %s", ErrInvalidTime, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("%w: %s", ErrInvalidTime, s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On combines a ClockTime with a Date in loc.
func (c ClockTime) On(d Date, loc *time.Location) time.Time {
	base := d.midnight(loc)
	return base.Add(time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute)
}

// Before reports whether c is strictly earlier in the day than o.
func (c ClockTime) Before(o ClockTime) bool {
	return c.Hour < o.Hour || (c.Hour == o.Hour && c.Minute < o.Minute)
}
