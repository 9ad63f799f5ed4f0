package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/store"
)

func newTestApp(t *testing.T) (*store.SqliteStore, *fiber.App) {
	t.Helper()

	st, err := store.NewSqliteStore(":memory:", time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		App: config.AppConfig{Name: "helpdesk-bot", Version: "test"},
		Escalation: config.EscalationConfig{
			Timezone: "UTC",
		},
	}
	app := NewApp(Dependencies{
		Config:  cfg,
		Store:   st,
		Logger:  zap.NewNop(),
		Metrics: observability.NewMetrics(),
	})
	return st, app
}

func doRequest(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthLive(t *testing.T) {
	_, app := newTestApp(t)

	status, body := doRequest(t, app, "/health/live")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestHealthReady(t *testing.T) {
	_, app := newTestApp(t)

	status, body := doRequest(t, app, "/health/ready")
	assert.Equal(t, http.StatusOK, status)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["store"])
}

func TestGetTicket(t *testing.T) {
	st, app := newTestApp(t)

	category, ok := domain.FindIssueCategory("Network")
	require.True(t, ok)
	id, err := st.CreateTicket(context.Background(), store.NewTicket{
		ChatID:     100,
		FullName:   "A. Bat",
		Department: "IT",
		Category:   category,
	})
	require.NoError(t, err)

	status, body := doRequest(t, app, "/tickets/1")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(id), data["ID"])
	assert.Equal(t, "A. Bat", data["FullName"])

	status, body = doRequest(t, app, "/tickets/999")
	assert.Equal(t, http.StatusNotFound, status)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errBody["code"])

	status, _ = doRequest(t, app, "/tickets/abc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetSummary(t *testing.T) {
	st, app := newTestApp(t)

	category, ok := domain.FindIssueCategory("Network")
	require.True(t, ok)
	_, err := st.CreateTicket(context.Background(), store.NewTicket{
		ChatID: 100, FullName: "A. Bat", Department: "IT", Category: category,
	})
	require.NoError(t, err)

	status, body := doRequest(t, app, "/reports/summary")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["Total"])

	status, _ = doRequest(t, app, "/reports/summary?from=bogus")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doRequest(t, app, "/reports/summary?from=2000-01-01&to=2000-01-07")
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, float64(0), data["Total"])
}
