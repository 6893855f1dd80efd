// Package market_hours decides whether the configured trading session is open.
package market_hours

import "time"

// Any disables session detection; IsOpen always reports false.
const Any = "any"

// TradingHours represents regular trading hours in session-local time
type TradingHours struct {
	OpenHour    int // Hour (0-23)
	OpenMinute  int // Minute (0-59)
	CloseHour   int // Hour (0-23)
	CloseMinute int // Minute (0-59)
}

// openMinutes returns minutes since local midnight of the open.
func (h TradingHours) openMinutes() int {
	return h.OpenHour*60 + h.OpenMinute
}

func (h TradingHours) closeMinutes() int {
	return h.CloseHour*60 + h.CloseMinute
}

// Session is one row of the trading-hours table
type Session struct {
	Timezone     string
	Name         string
	TradingHours TradingHours
	Weekdays     []time.Weekday
	Location     *time.Location
}

// tradesOn reports whether the session runs on day.
func (s Session) tradesOn(day time.Weekday) bool {
	for _, d := range s.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// MarketStatus represents the current status of the configured session
type MarketStatus struct {
	Open      bool   `json:"open"`
	Session   string `json:"session"`
	Timezone  string `json:"timezone"`
	ClosesAt  string `json:"closes_at,omitempty"`  // Time when the session closes (if open)
	OpensAt   string `json:"opens_at,omitempty"`   // Time when the session opens (if closed)
	OpensDate string `json:"opens_date,omitempty"` // Date of the next session (if not today)
}
