package market_hours

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOpen_NewYork(t *testing.T) {
	calc, err := NewCalculator("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name     string
		datetime time.Time
		expected bool
	}{
		// 2024-01-16 is a Tuesday; EST is UTC-5, EDT is UTC-4
		{"open during regular hours", time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC), true},
		{"closed before open", time.Date(2024, 1, 16, 13, 0, 0, 0, time.UTC), false},
		{"open at 9:30", time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC), true},
		{"closed at 9:29:59", time.Date(2024, 1, 16, 14, 29, 59, 0, time.UTC), false},
		{"open at exactly 16:00", time.Date(2024, 1, 16, 21, 0, 0, 0, time.UTC), true},
		{"closed at 16:00:01", time.Date(2024, 1, 16, 21, 0, 1, 0, time.UTC), false},
		{"closed on Saturday", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC), false},
		{"open in summer time", time.Date(2024, 7, 16, 14, 0, 0, 0, time.UTC), true},
		{"closed in summer time after close", time.Date(2024, 7, 16, 20, 30, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, calc.IsOpen(tt.datetime))
		})
	}
}

func TestIsOpen_Copenhagen(t *testing.T) {
	calc, err := NewCalculator("Europe/Copenhagen")
	require.NoError(t, err)

	// Mon 2024-03-04 09:00 CET == 08:00 UTC
	assert.True(t, calc.IsOpen(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)))
	assert.False(t, calc.IsOpen(time.Date(2024, 3, 4, 7, 59, 0, 0, time.UTC)))
	assert.True(t, calc.IsOpen(time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)))
	assert.False(t, calc.IsOpen(time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)))
}

func TestIsOpen_AnyAlwaysFalse(t *testing.T) {
	calc, err := NewCalculator(Any)
	require.NoError(t, err)
	assert.True(t, calc.Disabled())
	assert.False(t, calc.IsOpen(time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)))
}

func TestNewCalculator_UnknownTimezone(t *testing.T) {
	_, err := NewCalculator("Mars/Olympus_Mons")
	assert.Error(t, err)
	assert.False(t, IsSupported("Mars/Olympus_Mons"))
	assert.True(t, IsSupported(Any))
	assert.True(t, IsSupported("Europe/London"))
}

func TestIsOpen_CachedWithinSecond(t *testing.T) {
	calc, err := NewCalculator("America/New_York")
	require.NoError(t, err)

	// 15:59:59.100 and 15:59:59.900 share a cache key
	first := time.Date(2024, 1, 16, 20, 59, 59, 100_000_000, time.UTC)
	assert.True(t, calc.IsOpen(first))
	assert.Equal(t, first.Unix(), calc.cachedSec)
	assert.True(t, calc.IsOpen(first.Add(800*time.Millisecond)))

	// next second recomputes
	assert.True(t, calc.IsOpen(time.Date(2024, 1, 16, 21, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 1, 16, 21, 0, 0, 0, time.UTC).Unix(), calc.cachedSec)
}

func TestStatus(t *testing.T) {
	calc, err := NewCalculator("America/New_York")
	require.NoError(t, err)

	open := calc.Status(time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC))
	assert.True(t, open.Open)
	assert.Equal(t, "16:00", open.ClosesAt)
	assert.Equal(t, "America/New_York", open.Timezone)

	// Friday evening: next open is Monday
	closed := calc.Status(time.Date(2024, 1, 19, 23, 0, 0, 0, time.UTC))
	assert.False(t, closed.Open)
	assert.Equal(t, "09:30", closed.OpensAt)
	assert.Equal(t, "2024-01-22", closed.OpensDate)

	// Tuesday early morning: opens later today
	early := calc.Status(time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "09:30", early.OpensAt)
	assert.Empty(t, early.OpensDate)

	anyCalc, _ := NewCalculator(Any)
	assert.Equal(t, Any, anyCalc.Status(time.Now()).Timezone)
}

func TestTimezones_Sorted(t *testing.T) {
	tzs := Timezones()
	require.NotEmpty(t, tzs)
	for i := 1; i < len(tzs); i++ {
		assert.Less(t, tzs[i-1], tzs[i])
	}
	s, ok := TradingHoursFor("Asia/Tokyo")
	require.True(t, ok)
	assert.Equal(t, 9, s.TradingHours.OpenHour)
	assert.NotNil(t, s.Location)
}

func TestIsOpen_Property(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// 2020-01-01 .. 2030-01-01
	const start, end = int64(1577836800), int64(1893456000)

	for _, tz := range Timezones() {
		tz := tz
		session, _ := TradingHoursFor(tz)

		properties.Property(tz+": open iff trading weekday and within [open, close]", prop.ForAll(
			func(unix int64) bool {
				calc, err := NewCalculator(tz)
				if err != nil {
					return false
				}
				at := time.Unix(unix, 0).UTC()
				local := at.In(session.Location)

				secOfDay := local.Hour()*3600 + local.Minute()*60 + local.Second()
				openSec := session.TradingHours.openMinutes() * 60
				closeSec := session.TradingHours.closeMinutes() * 60
				weekday := local.Weekday() >= time.Monday && local.Weekday() <= time.Friday
				expected := weekday && secOfDay >= openSec && secOfDay <= closeSec

				return calc.IsOpen(at) == expected
			},
			gen.Int64Range(start, end),
		))
	}

	properties.Property("any is never open", prop.ForAll(
		func(unix int64) bool {
			calc, _ := NewCalculator(Any)
			return !calc.IsOpen(time.Unix(unix, 0))
		},
		gen.Int64Range(start, end),
	))

	properties.TestingRun(t)
}
