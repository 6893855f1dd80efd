package coordinator

import (
	"fmt"
	"time"

	"github.com/aristath/saxo-portfolio/internal/events"
	"github.com/aristath/saxo-portfolio/internal/modules/market_hours"
	"github.com/rs/zerolog"
)

// computeInterval picks the poll interval for now: fixed when market hours
// are disabled, short while the market is open, long otherwise.
func (c *Coordinator) computeInterval(now time.Time) time.Duration {
	calc := c.Calculator()
	switch {
	case calc.Disabled():
		return IntervalFixed
	case calc.IsOpen(now):
		return IntervalMarketOpen
	default:
		return IntervalMarketClosed
	}
}

// applyInterval stores the recomputed interval and notifies the host only
// when it differs from the current one.
func (c *Coordinator) applyInterval(now time.Time, log zerolog.Logger) {
	next := c.computeInterval(now)

	c.mu.Lock()
	previous := c.interval
	c.interval = next
	c.mu.Unlock()

	if previous == next {
		return
	}

	marketOpen := next == IntervalMarketOpen
	log.Info().
		Dur("previous", previous).
		Dur("interval", next).
		Bool("market_open", marketOpen).
		Msg("Update interval changed")

	c.emit(&events.IntervalChangedData{
		PreviousSeconds: previous.Seconds(),
		CurrentSeconds:  next.Seconds(),
		MarketOpen:      marketOpen,
	})
	if c.onInterval != nil {
		c.onInterval(next)
	}
}

// Calculator returns the market-hours calculator for the configured timezone.
func (c *Coordinator) Calculator() *market_hours.Calculator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calc
}

// SetTimezone switches the market-hours timezone and recomputes the interval.
func (c *Coordinator) SetTimezone(timezone string) error {
	calc, err := market_hours.NewCalculator(timezone)
	if err != nil {
		return fmt.Errorf("failed to switch timezone: %w", err)
	}

	c.mu.Lock()
	c.calc = calc
	c.mu.Unlock()

	c.log.Info().Str("timezone", timezone).Msg("Market hours timezone changed")
	c.applyInterval(c.now(), c.log)
	return nil
}

// UpdateInterval returns the current polling interval.
func (c *Coordinator) UpdateInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// Available reports the sticky sensor availability: data exists and the last
// success is no older than max(floor, 3 x interval).
func (c *Coordinator) Available(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot == nil || c.lastSuccessAt.IsZero() {
		return false
	}

	threshold := availabilityMultiplier * c.interval
	if threshold < c.cfg.AvailabilityFloor {
		threshold = c.cfg.AvailabilityFloor
	}
	return now.Sub(c.lastSuccessAt) <= threshold
}

// SetAvailabilityFloor changes the minimum availability window.
func (c *Coordinator) SetAvailabilityFloor(floor time.Duration) {
	if floor <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.AvailabilityFloor = floor
}
