package market_hours

import (
	"sort"
	"time"
)

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// sessions maps an IANA timezone to its regular trading session.
var sessions = map[string]Session{
	"America/New_York": {
		Name:         "New York",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
		Weekdays:     weekdays,
	},
	"America/Chicago": {
		Name:         "Chicago",
		TradingHours: TradingHours{OpenHour: 8, OpenMinute: 30, CloseHour: 15, CloseMinute: 0},
		Weekdays:     weekdays,
	},
	"America/Toronto": {
		Name:         "Toronto",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
		Weekdays:     weekdays,
	},
	"Europe/London": {
		Name:         "London",
		TradingHours: TradingHours{OpenHour: 8, OpenMinute: 0, CloseHour: 16, CloseMinute: 30},
		Weekdays:     weekdays,
	},
	"Europe/Copenhagen": {
		Name:         "Copenhagen",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 0},
		Weekdays:     weekdays,
	},
	"Europe/Stockholm": {
		Name:         "Stockholm",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 30},
		Weekdays:     weekdays,
	},
	"Europe/Oslo": {
		Name:         "Oslo",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 16, CloseMinute: 20},
		Weekdays:     weekdays,
	},
	"Europe/Berlin": {
		Name:         "Frankfurt",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 30},
		Weekdays:     weekdays,
	},
	"Europe/Paris": {
		Name:         "Paris",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 30},
		Weekdays:     weekdays,
	},
	"Europe/Amsterdam": {
		Name:         "Amsterdam",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 30},
		Weekdays:     weekdays,
	},
	"Europe/Zurich": {
		Name:         "Zurich",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 30},
		Weekdays:     weekdays,
	},
	"Asia/Tokyo": {
		Name:         "Tokyo",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 15, CloseMinute: 0},
		Weekdays:     weekdays,
	},
	"Asia/Hong_Kong": {
		Name:         "Hong Kong",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
		Weekdays:     weekdays,
	},
	"Asia/Singapore": {
		Name:         "Singapore",
		TradingHours: TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 0},
		Weekdays:     weekdays,
	},
	"Australia/Sydney": {
		Name:         "Sydney",
		TradingHours: TradingHours{OpenHour: 10, OpenMinute: 0, CloseHour: 16, CloseMinute: 0},
		Weekdays:     weekdays,
	},
}

func init() {
	for tz, s := range sessions {
		s.Timezone = tz
		s.Location = mustLoadLocation(tz)
		sessions[tz] = s
	}
}

// TradingHoursFor returns the session configured for timezone.
func TradingHoursFor(timezone string) (Session, bool) {
	s, ok := sessions[timezone]
	return s, ok
}

// IsSupported reports whether timezone is Any or has a table entry.
func IsSupported(timezone string) bool {
	if timezone == Any {
		return true
	}
	_, ok := sessions[timezone]
	return ok
}

// Timezones lists every timezone in the table, sorted.
func Timezones() []string {
	out := make([]string, 0, len(sessions))
	for tz := range sessions {
		out = append(out, tz)
	}
	sort.Strings(out)
	return out
}

// mustLoadLocation loads a timezone location, panicking if it fails
func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("failed to load timezone: " + name + ": " + err.Error())
	}
	return loc
}
