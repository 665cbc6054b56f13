package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/sessionboard/internal/auth"
	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/model"
)

// --- モック定義 ---

type mockSessionService struct {
	listActiveFn func(ctx context.Context, caller *model.Caller) ([]model.SessionSummary, error)
	deleteFn     func(ctx context.Context, caller *model.Caller, sessionID string) error
}

func (m *mockSessionService) ListActive(ctx context.Context, caller *model.Caller) ([]model.SessionSummary, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx, caller)
	}
	return []model.SessionSummary{}, nil
}

func (m *mockSessionService) Delete(ctx context.Context, caller *model.Caller, sessionID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, caller, sessionID)
	}
	return nil
}

type mockAuthService struct {
	loginURLFn       func(state, nonce string) string
	handleCallbackFn func(ctx context.Context, code, nonce string, meta auth.RequestMeta) (*auth.LoginResult, error)
	logoutFn         func(ctx context.Context, caller *model.Caller) (string, error)
	statusFn         func(r *http.Request) (*auth.Status, error)
}

func (m *mockAuthService) LoginURL(state, nonce string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(state, nonce)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code, nonce string, meta auth.RequestMeta) (*auth.LoginResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code, nonce, meta)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, caller *model.Caller) (string, error) {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, caller)
	}
	return "", nil
}

func (m *mockAuthService) Status(r *http.Request) (*auth.Status, error) {
	if m.statusFn != nil {
		return m.statusFn(r)
	}
	return &auth.Status{}, nil
}

type mockProvider struct {
	getUserFn func(r *http.Request) (*model.Caller, error)
}

func (m *mockProvider) IsAuthenticated(r *http.Request) (bool, error) {
	c, err := m.GetUser(r)
	return c != nil, err
}

func (m *mockProvider) GetUser(r *http.Request) (*model.Caller, error) {
	if m.getUserFn != nil {
		return m.getUserFn(r)
	}
	return nil, nil
}

type mockProfiles struct{}

func (mockProfiles) Profile(u *model.User) model.Profile {
	return model.Profile{Email: u.Email, GivenName: u.GivenName, FamilyName: u.FamilyName}
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }

// --- ヘルパー ---

var testCaller = &model.Caller{
	ExternalID:        "kp_1",
	ProviderSessionID: "sid-1",
	User:              &model.User{ID: "user-1", ExternalID: "kp_1", Email: "taro@example.com", GivenName: "Taro"},
}

func withCaller(r *http.Request, caller *model.Caller) *http.Request {
	return r.WithContext(middleware.ContextWithCaller(r.Context(), caller))
}
