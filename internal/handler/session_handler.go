package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/model"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	// ListActive は呼び出し元ユーザーの有効なセッション一覧を返す。
	ListActive(ctx context.Context, caller *model.Caller) ([]model.SessionSummary, error)
	// Delete は呼び出し元ユーザーの有効なセッションを論理削除する。
	Delete(ctx context.Context, caller *model.Caller, sessionID string) error
}

// SessionHandler はセッション管理のHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// sessionListResponse はセッション一覧のレスポンス。
type sessionListResponse struct {
	Sessions []model.SessionSummary `json:"sessions"`
}

// successResponse は成功のみを返すレスポンス。
type successResponse struct {
	Success bool `json:"success"`
}

// ListSessions は呼び出し元のアクティブなセッション一覧を返す。
// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())

	sessions, err := h.service.ListActive(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions})
}

// DeleteSession は指定セッションを無効化する。
// DELETE /api/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())

	if err := h.service.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
