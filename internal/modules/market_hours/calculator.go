package market_hours

import (
	"fmt"
	"sync"
	"time"
)

// Calculator answers "is the session open" for one configured timezone.
// Answers are cached per wall-clock second.
type Calculator struct {
	timezone string
	session  *Session

	mu         sync.Mutex
	cachedSec  int64
	cachedOpen bool
	cacheValid bool
}

// NewCalculator creates a calculator for timezone, which must be Any or
// present in the trading-hours table.
func NewCalculator(timezone string) (*Calculator, error) {
	c := &Calculator{timezone: timezone}
	if timezone == Any {
		return c, nil
	}
	s, ok := sessions[timezone]
	if !ok {
		return nil, fmt.Errorf("unsupported market timezone: %s", timezone)
	}
	c.session = &s
	return c, nil
}

// Timezone returns the configured timezone.
func (c *Calculator) Timezone() string {
	return c.timezone
}

// Disabled reports whether session detection is off.
func (c *Calculator) Disabled() bool {
	return c.session == nil
}

// IsOpen reports whether now falls on a trading weekday within
// [open, close] inclusive, in session-local time.
func (c *Calculator) IsOpen(now time.Time) bool {
	if c.session == nil {
		return false
	}

	sec := now.Unix()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheValid && c.cachedSec == sec {
		return c.cachedOpen
	}

	open := isOpen(*c.session, now)
	c.cachedSec = sec
	c.cachedOpen = open
	c.cacheValid = true
	return open
}

func isOpen(s Session, now time.Time) bool {
	local := now.In(s.Location)
	if !s.tradesOn(local.Weekday()) {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	if minute < s.TradingHours.openMinutes() {
		return false
	}
	closeMinute := s.TradingHours.closeMinutes()
	if minute > closeMinute {
		return false
	}
	// At the close minute only hh:mm:00 is still inside the window
	if minute == closeMinute && (local.Second() > 0 || local.Nanosecond() > 0) {
		return false
	}
	return true
}

// Status describes the configured session at now.
func (c *Calculator) Status(now time.Time) MarketStatus {
	if c.session == nil {
		return MarketStatus{Open: false, Session: Any, Timezone: Any}
	}

	s := *c.session
	local := now.In(s.Location)
	status := MarketStatus{
		Open:     c.IsOpen(now),
		Session:  s.Name,
		Timezone: s.Timezone,
	}

	if status.Open {
		status.ClosesAt = fmt.Sprintf("%02d:%02d", s.TradingHours.CloseHour, s.TradingHours.CloseMinute)
		return status
	}

	next := nextOpen(s, local)
	status.OpensAt = next.Format("15:04")
	if next.YearDay() != local.YearDay() || next.Year() != local.Year() {
		status.OpensDate = next.Format("2006-01-02")
	}
	return status
}

// nextOpen returns the next session open strictly after local.
func nextOpen(s Session, local time.Time) time.Time {
	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		open := time.Date(day.Year(), day.Month(), day.Day(),
			s.TradingHours.OpenHour, s.TradingHours.OpenMinute, 0, 0, s.Location)
		if s.tradesOn(open.Weekday()) && open.After(local) {
			return open
		}
	}
	return local
}
