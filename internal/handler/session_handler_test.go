package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/model"
)

func newSessionRouter(svc SessionServiceInterface) http.Handler {
	h := NewSessionHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/sessions", h.ListSessions)
	r.Delete("/api/sessions/{id}", h.DeleteSession)
	return r
}

func TestSessionHandler_ListSessions_ReturnsSessions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var gotCaller *model.Caller
	svc := &mockSessionService{
		listActiveFn: func(ctx context.Context, caller *model.Caller) ([]model.SessionSummary, error) {
			gotCaller = caller
			return []model.SessionSummary{
				{ID: "s1", UserAgent: "Firefox", IPAddress: "192.0.2.1", CreatedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour), IsCurrent: true},
				{ID: "s2", UserAgent: "Safari", IPAddress: "192.0.2.2", CreatedAt: now, LastActivityAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
			}, nil
		},
	}

	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/sessions", nil), testCaller)
	w := httptest.NewRecorder()
	newSessionRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotCaller != testCaller {
		t.Error("caller from context should be passed to the service")
	}

	var body struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(body.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(body.Sessions))
	}
	first := body.Sessions[0]
	if first["id"] != "s1" || first["isCurrent"] != true || first["userAgent"] != "Firefox" {
		t.Errorf("first session = %v", first)
	}
	for _, key := range []string{"ipAddress", "createdAt", "lastActivityAt", "expiresAt"} {
		if _, ok := first[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
}

func TestSessionHandler_ListSessions_EmptyIsArray(t *testing.T) {
	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/sessions", nil), testCaller)
	w := httptest.NewRecorder()
	newSessionRouter(&mockSessionService{}).ServeHTTP(w, req)

	if got := w.Body.String(); got != "{\"sessions\":[]}\n" {
		t.Errorf("body = %q, want empty sessions array", got)
	}
}

func TestSessionHandler_ListSessions_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unauthorized", model.NewUnauthorizedError(), http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"user not found", model.NewUserNotFoundError(), http.StatusNotFound, model.ErrCodeUserNotFound},
		{"store failure", errors.New("db down"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSessionService{
				listActiveFn: func(context.Context, *model.Caller) ([]model.SessionSummary, error) {
					return nil, tt.err
				},
			}
			w := httptest.NewRecorder()
			newSessionRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestSessionHandler_DeleteSession_Success(t *testing.T) {
	var gotID string
	svc := &mockSessionService{
		deleteFn: func(ctx context.Context, caller *model.Caller, sessionID string) error {
			gotID = sessionID
			return nil
		},
	}

	id := "0b6f5c1e-3c1a-4d4e-9a59-1f2a3b4c5d6e"
	req := withCaller(httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil), testCaller)
	w := httptest.NewRecorder()
	newSessionRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotID != id {
		t.Errorf("session id = %q, want %q", gotID, id)
	}
	if got := w.Body.String(); got != "{\"success\":true}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestSessionHandler_DeleteSession_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid id", model.NewInvalidArgumentError("id"), http.StatusBadRequest},
		{"unauthorized", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"user missing", model.NewUserNotFoundError(), http.StatusNotFound},
		{"not found or inactive", model.NewSessionNotFoundOrInactiveError(), http.StatusNotFound},
		{"store failure", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSessionService{
				deleteFn: func(context.Context, *model.Caller, string) error { return tt.err },
			}
			req := withCaller(httptest.NewRequest(http.MethodDelete, "/api/sessions/abc", nil), testCaller)
			w := httptest.NewRecorder()
			newSessionRouter(svc).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
