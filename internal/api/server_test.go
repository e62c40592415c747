package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"devicemonitor/internal/config"
	"devicemonitor/internal/ha"
	"devicemonitor/internal/i18n"
	"devicemonitor/internal/metrics"
	"devicemonitor/internal/monitor"
	"devicemonitor/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *ha.MockClient) {
	t.Helper()
	logger := zap.NewNop()

	client := ha.NewMockClient()
	client.SetDevice(ha.DeviceRegistryEntry{ID: "phone", Name: "Phone"})
	client.SetDevice(ha.DeviceRegistryEntry{ID: "remote", Name: "Remote"})
	client.SetEntity(ha.EntityRegistryEntry{EntityID: "sensor.phone_battery", DeviceID: "phone"})
	client.SetEntity(ha.EntityRegistryEntry{EntityID: "sensor.remote_battery", DeviceID: "remote"})
	client.SetState("sensor.phone_battery", "15", nil)
	client.SetState("sensor.remote_battery", "80", nil)
	require.NoError(t, client.Connect())

	manager := state.NewManager(client, logger)
	require.NoError(t, manager.Start())
	t.Cleanup(manager.Stop)

	catalog, err := i18n.Load()
	require.NoError(t, err)

	cfg := &config.Monitor{Name: "batteries", EntityType: config.EntityTypeBattery, ShowToggle: true}
	cfg.ApplyDefaults()
	m, err := monitor.New(cfg, catalog.Translator("en"), logger)
	require.NoError(t, err)

	return NewServer(manager, []*monitor.Monitor{m}, metrics.NewRecorder(), logger, 8082), client
}

func get(t *testing.T, s *Server, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, 2, response.Entities)
	assert.Equal(t, 1, response.Monitors)
}

func TestHandleListMonitors(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/monitors")

	require.Equal(t, http.StatusOK, w.Code)
	var response []MonitorSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response, 1)
	assert.Equal(t, "batteries", response[0].Name)
	assert.Equal(t, "Battery Monitor", response[0].Title)
	assert.Equal(t, config.EntityTypeBattery, response[0].Config.EntityType)
	assert.Equal(t, "Battery Monitor (1/2)", response[0].Badge.Text)
}

func TestHandleCard(t *testing.T) {
	s, client := newTestServer(t)

	w := get(t, s, "/api/monitors/batteries/card")
	require.Equal(t, http.StatusOK, w.Code)
	var card monitor.CardView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&card))
	require.Len(t, card.Items, 1)
	assert.Equal(t, "Phone", card.Items[0].Device.Name)
	assert.False(t, card.ShowingAll)

	w = get(t, s, "/api/monitors/batteries/card?show_all=true")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&card))
	assert.Len(t, card.Items, 2)
	assert.True(t, card.ShowingAll)

	client.SimulateStateChange("sensor.phone_battery", "90")
	w = get(t, s, "/api/monitors/batteries/card")
	card = monitor.CardView{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&card))
	assert.Empty(t, card.Items)
	assert.Equal(t, "All batteries are OK", card.EmptyMessage)
}

func TestHandleCard_BadQuery(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/monitors/batteries/card?expanded=maybe")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response.Error, "expanded")
}

func TestHandleBadge(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/monitors/batteries/badge?edit_mode=1")

	require.Equal(t, http.StatusOK, w.Code)
	var badge monitor.BadgeView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&badge))
	assert.Equal(t, "Battery Monitor (1/2)", badge.Text)
	assert.True(t, badge.Visible)
	assert.Equal(t, "mdi:battery-alert", badge.Icon)
}

func TestHandleDevices(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/monitors/batteries/devices")

	require.Equal(t, http.StatusOK, w.Code)
	var result monitor.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, 2, result.TotalDevices)
	require.Len(t, result.AlertDevices, 1)
	assert.Equal(t, "sensor.phone_battery", result.AlertDevices[0].EntityID)
	assert.Len(t, result.NormalDevices, 1)
}

func TestUnknownMonitor(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"card", "badge", "devices"} {
		w := get(t, s, "/api/monitors/nope/"+path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, `unknown monitor "nope"`, response.Error)
	}
}

func TestHandleSitemap(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("plain text", func(t *testing.T) {
		w := get(t, s, "/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		body := w.Body.String()
		assert.Contains(t, body, "/api/monitors/{name}/card")
		assert.Contains(t, body, "/metrics")
		assert.Contains(t, body, "batteries")
	})

	t.Run("html", func(t *testing.T) {
		w := get(t, s, "/", "Accept", "text/html,application/xhtml+xml")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "<!DOCTYPE html>"))
		assert.Contains(t, w.Body.String(), `href="/api/monitors/batteries/card"`)
	})

	t.Run("unknown page", func(t *testing.T) {
		w := get(t, s, "/nope")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Device Monitor API")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	get(t, s, "/api/monitors/batteries/badge")
	w := get(t, s, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/api/monitors/{name}/badge"`)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
