package handler

import (
	"net/http"

	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/model"
)

// ProfileRenderer はユーザーのサニタイズ済みプロフィールを返す。
type ProfileRenderer interface {
	Profile(u *model.User) model.Profile
}

// DashboardHandler はダッシュボード初期表示用のデータを返す。
type DashboardHandler struct {
	sessions SessionServiceInterface
	profiles ProfileRenderer
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(sessions SessionServiceInterface, profiles ProfileRenderer) *DashboardHandler {
	return &DashboardHandler{sessions: sessions, profiles: profiles}
}

type dashboardResponse struct {
	Path         string        `json:"path"`
	User         model.Profile `json:"user"`
	SessionCount int           `json:"sessionCount"`
}

// Show はダッシュボードの初期データを返す。
// GET /dashboard, GET /dashboard/*
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok || caller.User == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	sessions, err := h.sessions.ListActive(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Path:         r.URL.Path,
		User:         h.profiles.Profile(caller.User),
		SessionCount: len(sessions),
	})
}
