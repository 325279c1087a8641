// Package apitest holds helpers for exercising route packages against an
// in-memory store with real sessions.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/auth"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Env struct {
	Store    *storage.MemStore
	Fetcher  auth.SessionInfo
	sessions map[string]string // user ID -> session ID
}

func NewEnv() *Env {
	store := storage.NewMemStore()
	return &Env{
		Store:    store,
		Fetcher:  auth.SessionInfo{Store: store},
		sessions: make(map[string]string),
	}
}

// AddUser creates a user with a live session. org is ignored when empty.
func (e *Env) AddUser(t *testing.T, role models.Role, org string) models.User {
	t.Helper()
	name := string(role) + "_" + uuid.NewString()[:8]
	u := models.User{
		Username:       name,
		HashedPassword: "!",
		Email:          name + "@example.com",
		Role:           role,
		Name:           name,
	}
	if org != "" {
		u.Organization = &org
	}
	u, err := e.Store.CreateUser(context.Background(), u)
	require.NoError(t, err)

	sid := uuid.NewString()
	require.NoError(t, e.Store.CreateSession(context.Background(), models.Session{
		SessionID: sid, UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour),
	}))
	e.sessions[u.ID] = sid
	return u
}

// Do sends body (JSON encoded unless it is an io.Reader) to h as user.
// A nil user sends no cookie.
func (e *Env) Do(t *testing.T, h http.Handler, method, path string, user *models.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		r = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		if _, ok := body.(io.Reader); !ok {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if user != nil {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: e.sessions[user.ID]})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals a JSON response body, failing the test on error.
func Decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// Send serves a prepared request as user.
func (e *Env) Send(t *testing.T, h http.Handler, req *http.Request, user *models.User) *httptest.ResponseRecorder {
	t.Helper()
	if user != nil {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: e.sessions[user.ID]})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
