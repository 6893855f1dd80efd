// Package handlers provides HTTP handlers for system settings management.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/saxo-portfolio/internal/events"
	"github.com/aristath/saxo-portfolio/internal/modules/settings"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CredentialRefresher reloads the application credentials after they change
type CredentialRefresher interface {
	RefreshCredentials() error
}

// TimezoneSwitcher applies a new market-hours timezone
type TimezoneSwitcher interface {
	SetTimezone(timezone string) error
}

// AvailabilityFloorSetter applies a new minimum sensor availability window
type AvailabilityFloorSetter interface {
	SetAvailabilityFloor(floor time.Duration)
}

// Handler provides HTTP handlers for settings endpoints
type Handler struct {
	service             *settings.Service
	credentialRefresher CredentialRefresher
	timezoneSwitcher    TimezoneSwitcher
	floorSetter         AvailabilityFloorSetter
	eventManager        *events.Manager
	log                 zerolog.Logger
}

// NewHandler creates a new settings handler
func NewHandler(service *settings.Service, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		service:      service,
		eventManager: eventManager,
		log:          log.With().Str("handler", "settings").Logger(),
	}
}

// SetCredentialRefresher sets the credential refresher (for dependency injection)
func (h *Handler) SetCredentialRefresher(refresher CredentialRefresher) {
	h.credentialRefresher = refresher
}

// SetTimezoneSwitcher sets the timezone switcher (for dependency injection)
func (h *Handler) SetTimezoneSwitcher(switcher TimezoneSwitcher) {
	h.timezoneSwitcher = switcher
}

// SetAvailabilityFloorSetter sets the availability floor target (for dependency injection)
func (h *Handler) SetAvailabilityFloorSetter(setter AvailabilityFloorSetter) {
	h.floorSetter = setter
}

// RegisterRoutes registers all settings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.HandleGetAll)
		r.Put("/{key}", h.HandleUpdate)
	})
}

// HandleGetAll handles GET /api/settings
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.GetAllRedacted()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get all settings")
		http.Error(w, "Failed to get settings", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": values,
		"metadata": map[string]interface{}{
			"timestamp":    time.Now().Format(time.RFC3339),
			"descriptions": settings.SettingDescriptions,
		},
	})
}

// HandleUpdate handles PUT /api/settings/{key}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "Key is required", http.StatusBadRequest)
		return
	}

	var update settings.SettingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	isFirstTimeSetup, err := h.service.Set(key, update.Value)
	if err != nil {
		h.log.Error().
			Err(err).
			Str("key", key).
			Msg("Failed to update setting")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch key {
	case settings.KeyAppKey, settings.KeyAppSecret, settings.KeyRedirectURI:
		if h.credentialRefresher != nil {
			if err := h.credentialRefresher.RefreshCredentials(); err != nil {
				h.log.Warn().Err(err).Msg("Failed to refresh credentials after update")
			} else {
				h.log.Info().Msg("Credentials refreshed after settings update")
			}
		}
	case settings.KeyTimezone:
		if tz, ok := update.Value.(string); ok && h.timezoneSwitcher != nil {
			tz = strings.TrimSpace(tz)
			if err := h.timezoneSwitcher.SetTimezone(tz); err != nil {
				h.log.Warn().Err(err).Str("timezone", tz).Msg("Failed to switch timezone after update")
			}
		}
	case settings.KeyAvailabilityFloor:
		if minutes, ok := update.Value.(float64); ok && h.floorSetter != nil {
			h.floorSetter.SetAvailabilityFloor(time.Duration(minutes * float64(time.Minute)))
		}
	case settings.KeyLogLevel:
		if str, ok := update.Value.(string); ok {
			if level, err := zerolog.ParseLevel(strings.TrimSpace(str)); err == nil {
				zerolog.SetGlobalLevel(level)
				h.log.Info().Str("level", level.String()).Msg("Log level changed")
			}
		}
	}

	if isFirstTimeSetup {
		h.log.Info().Msg("Application credentials configured, visit /oauth/authorize to link the account")
	}

	value := update.Value
	if settings.SecretSettings[key] {
		value = settings.RedactedValue
	}

	if h.eventManager != nil {
		h.eventManager.EmitTyped("settings", &events.SettingsChangedData{
			Key:   key,
			Value: value,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			key:                value,
			"first_time_setup": isFirstTimeSetup,
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
