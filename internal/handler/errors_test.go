package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewInvalidArgumentError("id"), http.StatusBadRequest},
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewUserNotFoundError(), http.StatusNotFound},
		{model.NewSessionNotFoundOrInactiveError(), http.StatusNotFound},
		{model.NewForbiddenRoleError(), http.StatusForbidden},
		{model.NewForbiddenPermissionError(), http.StatusForbidden},
		{model.NewProcedureNotFoundError("x"), http.StatusNotFound},
		{model.NewRateLimitExceededError(), http.StatusTooManyRequests},
		{model.NewAuthUnavailableError(), http.StatusServiceUnavailable},
		{model.NewNotFoundError(), http.StatusNotFound},
		{model.NewMethodNotAllowedError(), http.StatusMethodNotAllowed},
		{model.NewInternalError(), http.StatusInternalServerError},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, fmt.Errorf("delete failed: %w", model.NewSessionNotFoundOrInactiveError()))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeSessionNotFoundOrInactive {
		t.Errorf("code = %q", body.Code)
	}
}

func TestHandleServiceError_GenericErrorHidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("pq: connection refused to 10.0.0.5"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
	if body.Message == "pq: connection refused to 10.0.0.5" {
		t.Error("internal error detail must not leak to the client")
	}
}
