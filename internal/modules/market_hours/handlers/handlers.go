// Package handlers provides HTTP handlers for market hours operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/saxo-portfolio/internal/modules/market_hours"
	"github.com/rs/zerolog"
)

// CalculatorSource returns the calculator for the configured timezone.
// The configured timezone can change at runtime.
type CalculatorSource interface {
	Calculator() *market_hours.Calculator
}

// Handler handles market hours HTTP requests
type Handler struct {
	calc CalculatorSource
	now  func() time.Time
	log  zerolog.Logger
}

// NewHandler creates a new market hours handler
func NewHandler(
	calc CalculatorSource,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		calc: calc,
		now:  time.Now,
		log:  log.With().Str("handler", "market_hours").Logger(),
	}
}

// HandleGetStatus handles GET /api/market-hours/status
// Returns the status of the configured session
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	status := h.calc.Calculator().Status(now)

	response := map[string]interface{}{
		"data": statusData(status),
		"metadata": map[string]interface{}{
			"timestamp": now.Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetStatusByTimezone handles GET /api/market-hours/status/{timezone}
// Returns the status of any session in the table
func (h *Handler) HandleGetStatusByTimezone(w http.ResponseWriter, r *http.Request, timezone string) {
	calc, err := market_hours.NewCalculator(timezone)
	if err != nil {
		h.log.Debug().Err(err).Str("timezone", timezone).Msg("Unknown timezone requested")
		http.Error(w, "Unsupported timezone", http.StatusNotFound)
		return
	}

	now := h.now()
	response := map[string]interface{}{
		"data": statusData(calc.Status(now)),
		"metadata": map[string]interface{}{
			"timestamp": now.Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetSessions handles GET /api/market-hours/sessions
// Returns the trading-hours table
func (h *Handler) HandleGetSessions(w http.ResponseWriter, r *http.Request) {
	timezones := market_hours.Timezones()
	sessions := make([]map[string]interface{}, 0, len(timezones))
	for _, tz := range timezones {
		s, _ := market_hours.TradingHoursFor(tz)
		sessions = append(sessions, map[string]interface{}{
			"timezone": tz,
			"name":     s.Name,
			"open":     formatClock(s.TradingHours.OpenHour, s.TradingHours.OpenMinute),
			"close":    formatClock(s.TradingHours.CloseHour, s.TradingHours.CloseMinute),
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"configured": h.calc.Calculator().Timezone(),
			"sessions":   sessions,
			"count":      len(sessions),
		},
		"metadata": map[string]interface{}{
			"timestamp": h.now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

func statusData(status market_hours.MarketStatus) map[string]interface{} {
	data := map[string]interface{}{
		"session":  status.Session,
		"open":     status.Open,
		"timezone": status.Timezone,
	}
	if status.Open {
		data["closes_at"] = status.ClosesAt
	} else {
		if status.OpensAt != "" {
			data["opens_at"] = status.OpensAt
		}
		if status.OpensDate != "" {
			data["opens_date"] = status.OpensDate
		}
	}
	return data
}

func formatClock(hour, minute int) string {
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format("15:04")
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
