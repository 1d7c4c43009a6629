package civildate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
)

func TestParseDateWireFormat(t *testing.T) {
	d, err := civildate.ParseDate("05-03-2026")
	require.NoError(t, err)
	assert.Equal(t, "05-03-2026", d.String())
}

func TestParseDateRejectsMalformed(t *testing.T) {
	_, err := civildate.ParseDate("2026-03-05")
	assert.ErrorIs(t, err, civildate.ErrInvalidDate)
}

func TestDateEqualIgnoresZone(t *testing.T) {
	a, _ := civildate.ParseDate("05-03-2026")
	b := civildate.FromTime(time.Date(2026, 3, 5, 23, 59, 0, 0, time.UTC))
	assert.True(t, a.Equal(b))
}

func TestClockTimeParseAndOn(t *testing.T) {
	ct, err := civildate.ParseClockTime("09:30")
	require.NoError(t, err)
	assert.Equal(t, "09:30", ct.String())

	d, _ := civildate.ParseDate("05-03-2026")
	loc := time.UTC
	combined := ct.On(d, loc)
	assert.Equal(t, time.Date(2026, 3, 5, 9, 30, 0, 0, loc), combined)
}

func TestClockTimeRejectsOutOfRange(t *testing.T) {
	_, err := civildate.ParseClockTime("24:00")
	assert.ErrorIs(t, err, civildate.ErrInvalidTime)
}

func TestClockTimeBefore(t *testing.T) {
	a, _ := civildate.ParseClockTime("09:00")
	b, _ := civildate.ParseClockTime("09:30")
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
}
