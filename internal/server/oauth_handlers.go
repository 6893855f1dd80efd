package server

import (
	"context"
	"net/http"
	"time"
)

// handleAuthorize handles GET /oauth/authorize
// Redirects the user to the brokerage login page.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if s.exchanger == nil || !s.exchanger.Configured() {
		http.Error(w, "Application credentials are not configured", http.StatusConflict)
		return
	}

	authorizeURL, _ := s.exchanger.AuthorizeURL()
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// handleCallback handles GET /oauth/callback?code=&state=
// Exchanges the authorization code and stores the resulting token.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		s.log.Warn().
			Str("error", errParam).
			Str("description", query.Get("error_description")).
			Msg("Authorization was denied")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		return
	}

	if s.exchanger == nil || !s.exchanger.ConsumeState(query.Get("state")) {
		http.Error(w, "Invalid or expired state", http.StatusBadRequest)
		return
	}

	token, err := s.exchanger.ExchangeCode(r.Context(), query.Get("code"))
	if err != nil {
		s.writeError(w, "authorization_code", err)
		return
	}

	if err := s.tokens.SetToken(r.Context(), token); err != nil {
		s.log.Error().Err(err).Msg("Failed to store exchanged token")
		http.Error(w, "Failed to store token", http.StatusInternalServerError)
		return
	}

	// First data with the new token; the response does not wait for it
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.coordinator.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Refresh after authorization failed")
		}
	}()

	s.writeData(w, http.StatusOK, map[string]interface{}{
		"status":     "authorized",
		"expires_at": token.ExpiresAt.Format(time.RFC3339),
	})
}
