package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/saxo-portfolio/internal/events"
	"github.com/aristath/saxo-portfolio/internal/modules/settings"
	testingpkg "github.com/aristath/saxo-portfolio/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct{ calls int }

func (f *fakeRefresher) RefreshCredentials() error {
	f.calls++
	return nil
}

type fakeSwitcher struct{ timezone string }

func (f *fakeSwitcher) SetTimezone(timezone string) error {
	f.timezone = timezone
	return nil
}

type fakeFloorSetter struct{ floor time.Duration }

func (f *fakeFloorSetter) SetAvailabilityFloor(floor time.Duration) {
	f.floor = floor
}

func newTestRouter(t *testing.T) (chi.Router, *Handler, *events.Bus) {
	t.Helper()
	db := testingpkg.NewTestDB(t)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	service := settings.NewService(settings.NewRepository(db.Conn(), log), log)
	bus := events.NewBus()
	handler := NewHandler(service, events.NewManager(bus, log), log)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router, handler, bus
}

func put(router http.Handler, key string, value interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(settings.SettingUpdate{Value: value})
	req := httptest.NewRequest(http.MethodPut, "/api/settings/"+key, bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleUpdate_CredentialsTriggerRefreshAndEvent(t *testing.T) {
	router, handler, bus := newTestRouter(t)
	refresher := &fakeRefresher{}
	handler.SetCredentialRefresher(refresher)

	var emitted []*events.Event
	bus.Subscribe(events.SettingsChanged, func(e *events.Event) { emitted = append(emitted, e) })

	w := put(router, settings.KeyAppKey, "key")
	require.Equal(t, http.StatusOK, w.Code)
	w = put(router, settings.KeyAppSecret, "secret")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, refresher.calls)
	require.Len(t, emitted, 2)
	assert.Equal(t, settings.RedactedValue, emitted[1].Data["value"], "secret never leaves the process")

	var response map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["data"]["first_time_setup"])
	assert.Equal(t, settings.RedactedValue, response["data"][settings.KeyAppSecret])
}

func TestHandleUpdate_Timezone(t *testing.T) {
	router, handler, _ := newTestRouter(t)
	switcher := &fakeSwitcher{}
	handler.SetTimezoneSwitcher(switcher)

	w := put(router, settings.KeyTimezone, "Europe/London")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Europe/London", switcher.timezone)

	w = put(router, settings.KeyTimezone, "Nowhere/Land")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Europe/London", switcher.timezone)
}

func TestHandleUpdate_TimezoneIsTrimmed(t *testing.T) {
	router, handler, _ := newTestRouter(t)
	switcher := &fakeSwitcher{}
	handler.SetTimezoneSwitcher(switcher)

	w := put(router, settings.KeyTimezone, " any ")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "any", switcher.timezone)
}

func TestHandleUpdate_AvailabilityFloor(t *testing.T) {
	router, handler, _ := newTestRouter(t)
	setter := &fakeFloorSetter{}
	handler.SetAvailabilityFloorSetter(setter)

	w := put(router, settings.KeyAvailabilityFloor, 20.5)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20*time.Minute+30*time.Second, setter.floor)

	w = put(router, settings.KeyAvailabilityFloor, -1)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 20*time.Minute+30*time.Second, setter.floor)
}

func TestHandleUpdate_LogLevel(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	router, _, _ := newTestRouter(t)

	w := put(router, settings.KeyLogLevel, "warn")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	w = put(router, settings.KeyLogLevel, "loud")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestHandleUpdate_BadBody(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPut, "/api/settings/"+settings.KeyAppKey, bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetAll_RedactsSecrets(t *testing.T) {
	router, _, _ := newTestRouter(t)
	require.Equal(t, http.StatusOK, put(router, settings.KeyAppSecret, "secret").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/settings/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"secret"`)

	var response map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, settings.RedactedValue, response["data"][settings.KeyAppSecret])
	assert.Equal(t, "America/New_York", response["data"][settings.KeyTimezone])
	assert.NotNil(t, response["metadata"]["descriptions"])
}
