package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EcoWatch/EcoWatch-Backend/internal/auth"
	"github.com/EcoWatch/EcoWatch-Backend/internal/config"
	"github.com/EcoWatch/EcoWatch-Backend/internal/incidents"
	"github.com/EcoWatch/EcoWatch-Backend/internal/media"
	"github.com/EcoWatch/EcoWatch-Backend/internal/seeds"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newApp(t *testing.T) *App {
	t.Helper()
	return newAppWithLog(t, zap.NewNop())
}

func newAppWithLog(t *testing.T, log *zap.Logger) *App {
	t.Helper()
	store := storage.NewMemStore()
	_, err := seeds.SeedAll(context.Background(), store, zap.NewNop())
	require.NoError(t, err)

	cfg := config.Config{
		Port:           "0",
		ReportRate:     600,
		AllowedOrigins: []string{"http://localhost:5173"},
	}
	a := New(Deps{Config: cfg, Store: store, Media: media.NewMemory(), Log: log})
	t.Cleanup(a.Close)
	return a
}

func do(t *testing.T, h http.Handler, method, path string, cookie *http.Cookie, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "203.0.113.7:5555"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, username string) *http.Cookie {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/login", nil, map[string]string{
		"username": username, "password": seeds.DefaultPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec := do(t, a.Router, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server is up!")

	rec = do(t, a.Router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCitizenToCoordinatorFlow(t *testing.T) {
	a := newApp(t)
	citizen := login(t, a.Router, "citizen1")
	coord := login(t, a.Router, "coordinator1")

	rec := do(t, a.Router, http.MethodPost, "/reports", citizen, map[string]interface{}{
		"description": "Tyres dumped in the alley. Around ten of them.",
		"location":    map[string]float64{"lat": 51.5, "lng": -0.12},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rep incidents.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "John Citizen", rep.UserName)

	rec = do(t, a.Router, http.MethodGet, "/reports", citizen, nil)
	var mine []incidents.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 5, "four seeded reports of citizen1 plus the new one")

	rec = do(t, a.Router, http.MethodPatch, "/reports/"+rep.ID+"/status", coord, map[string]string{"status": "in-progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, a.Router, http.MethodGet, "/notifications", citizen, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
	assert.Len(t, notes, 1)

	rec = do(t, a.Router, http.MethodGet, "/dashboard", coord, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"open_incidents"`)

	rec = do(t, a.Router, http.MethodGet, "/analytics/summary", citizen, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, a.Router, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/reports/{id}/status"`)
	assert.Contains(t, rec.Body.String(), `ecowatch_incidents{status="in-progress"}`)
}

func TestUnknownRouteAndAuth(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusNotFound, do(t, a.Router, http.MethodGet, "/nope", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, a.Router, http.MethodGet, "/incidents", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, a.Router, http.MethodPost, "/auth/demo-login", nil,
		map[string]string{"email": "x@example.com", "role": "citizen"}).Code, "demo login is off by default")
	assert.Equal(t, http.StatusBadRequest, do(t, a.Router, http.MethodPost, "/webhooks/intake", nil, map[string]string{}).Code,
		"deliveries without a submission id are rejected")
}

func TestLogEntriesTaggedOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := newAppWithLog(t, zap.New(core))
	citizen := login(t, a.Router, "citizen1")

	rec := do(t, a.Router, http.MethodPost, "/reports", citizen, map[string]interface{}{
		"description": "Oil drums leaking into the canal.",
		"location":    map[string]float64{"lat": 51.5, "lng": -0.12},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	entries := logs.All()
	require.NotEmpty(t, entries)
	var reported bool
	for _, e := range entries {
		assert.Empty(t, e.LoggerName, e.Message)
		assert.Regexp(t, `^\[[a-z]+\] `, e.Message)
		_, hasComponent := e.ContextMap()["component"]
		assert.False(t, hasComponent, e.Message)
		if e.Message == "[incidents] reported" {
			reported = true
		}
	}
	assert.True(t, reported)
}
