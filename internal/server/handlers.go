package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/saxo-portfolio/internal/coordinator"
	"github.com/aristath/saxo-portfolio/internal/domain"
)

const healthCheckTimeout = 5 * time.Second

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator

	status := "healthy"
	if !c.LastUpdateSuccess() {
		status = "degraded"
	}

	data := map[string]interface{}{
		"status":                  status,
		"last_update_success":     c.LastUpdateSuccess(),
		"update_interval_seconds": c.UpdateInterval().Seconds(),
		"token_state":             s.tokens.State(),
		"lifecycle":               c.Lifecycle(),
	}
	if at := c.LastSuccessAt(); !at.IsZero() {
		data["last_success_at"] = at.Format(time.RFC3339)
	}
	if err := c.LastError(); err != nil {
		data["last_error"] = err.Error()
		data["last_error_kind"] = domain.KindOf(err)
	}
	if s.limiter != nil {
		data["rate_limiter"] = s.limiter.Stats()
	}
	if s.nextPoll != nil {
		if next, ok := s.nextPoll(); ok {
			data["next_poll_at"] = next.Format(time.RFC3339)
		}
	}
	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.database.HealthCheck(ctx); err != nil {
			s.log.Error().Err(err).Msg("Database health check failed")
			data["status"] = "unhealthy"
			data["database"] = err.Error()
		} else {
			data["database"] = "ok"
		}
	}

	s.writeData(w, http.StatusOK, data)
}

// handleSnapshot handles GET /api/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := s.coordinator.Snapshot()
	if snapshot == nil {
		http.Error(w, "No snapshot yet", http.StatusNotFound)
		return
	}
	s.writeData(w, http.StatusOK, snapshot)
}

// handleSensors handles GET /api/sensors
// Values are neutral until the first successful poll.
func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator

	var lastUpdated interface{}
	if at := c.LastUpdated(); !at.IsZero() {
		lastUpdated = at.Format(time.RFC3339)
	}

	s.writeData(w, http.StatusOK, map[string]interface{}{
		"available":                                 c.Available(s.now()),
		"cash_balance":                              c.CashBalance(),
		"total_value":                               c.TotalValue(),
		"non_margin_positions_value":                c.NonMarginPositionsValue(),
		"currency":                                  c.Currency(),
		"ytd_earnings_percentage":                   c.YTDEarningsPercentage(),
		"investment_performance_percentage":         c.InvestmentPerformancePercentage(),
		"ytd_investment_performance_percentage":     c.YTDInvestmentPerformancePercentage(),
		"month_investment_performance_percentage":   c.MonthInvestmentPerformancePercentage(),
		"quarter_investment_performance_percentage": c.QuarterInvestmentPerformancePercentage(),
		"accumulated_profit_loss":                   c.AccumulatedProfitLoss(),
		"cash_transfer_balance":                     c.CashTransferBalance(),
		"client_id":                                 c.ClientID(),
		"account_id":                                c.AccountID(),
		"client_name":                               c.ClientName(),
		"last_updated":                              lastUpdated,
	})
}

// handleRefresh handles POST /api/refresh
// Joins any poll already in flight.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Refresh(r.Context()); err != nil {
		s.writeError(w, "refresh", err)
		return
	}
	s.writeData(w, http.StatusOK, s.coordinator.Snapshot())
}

// handlePositions handles GET /api/positions
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.coordinator.NetPositions(r.Context())
	if err != nil {
		s.writeError(w, "net_positions", err)
		return
	}
	if positions == nil {
		positions = []domain.NetPosition{}
	}
	s.writeData(w, http.StatusOK, positions)
}

// statusForError maps an error kind to an HTTP status
func statusForError(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch domain.KindOf(err) {
	case domain.KindAuthFatal:
		return http.StatusUnauthorized
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	s.log.Warn().Err(err).Str("op", op).Int("status", status).Msg("Request failed")
	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": err.Error(),
			"kind":    domain.KindOf(err),
		},
	})
}

func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": s.now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
