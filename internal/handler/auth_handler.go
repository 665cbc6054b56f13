package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/sessionboard/internal/auth"
	"github.com/hitoshi/sessionboard/internal/identity"
	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/model"
	"github.com/hitoshi/sessionboard/internal/security"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	returnPathCookie    = "post_login_redirect"
	returnPathParam     = "post_login_redirect_url"
	loginFlowCookieTTL  = 600 // 10分
	statusErrorResponse = "failed to resolve authentication status"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginURL(state, nonce string) string
	HandleCallback(ctx context.Context, code, nonce string, meta auth.RequestMeta) (*auth.LoginResult, error)
	Logout(ctx context.Context, caller *model.Caller) (string, error)
	Status(r *http.Request) (*auth.Status, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
	// DashboardPath はログイン後の既定の遷移先。
	DashboardPath string
}

// AuthHandler はOIDC認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	provider identity.Provider
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// providerはログアウト時の呼び出し元解決に使う。
func NewAuthHandler(service AuthServiceInterface, provider identity.Provider, config AuthHandlerConfig) *AuthHandler {
	if config.DashboardPath == "" {
		config.DashboardPath = "/dashboard"
	}
	return &AuthHandler{
		service:  service,
		provider: provider,
		config:   config,
	}
}

// Login はOIDC認可コードフローを開始する。
// GET /api/auth/login?post_login_redirect_url=/dashboard/...
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.NewRandomToken()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	nonce, err := auth.NewRandomToken()
	if err != nil {
		slog.Error("failed to generate oidc nonce", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	authURL := h.service.LoginURL(state, nonce)
	if authURL == "" {
		middleware.WriteAuthUnavailable(w)
		return
	}

	returnTo := security.SafeReturnPath(r.URL.Query().Get(returnPathParam), h.config.DashboardPath)

	h.setFlowCookie(w, oauthStateCookie, state)
	h.setFlowCookie(w, oauthNonceCookie, nonce)
	h.setFlowCookie(w, returnPathCookie, returnTo)

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback はOIDCコールバックを処理し、セッションCookieを発行する。
// GET /api/auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch")
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidArgumentError("stateが一致しません"))
		return
	}

	nonce := ""
	if c, err := r.Cookie(oauthNonceCookie); err == nil {
		nonce = c.Value
	}
	returnTo := h.config.DashboardPath
	if c, err := r.Cookie(returnPathCookie); err == nil {
		returnTo = security.SafeReturnPath(c.Value, h.config.DashboardPath)
	}

	// フロー用Cookieは結果にかかわらず破棄する
	h.clearCookie(w, oauthStateCookie, "")
	h.clearCookie(w, oauthNonceCookie, "")
	h.clearCookie(w, returnPathCookie, "")

	// 2. 認証処理
	result, err := h.service.HandleCallback(r.Context(), r.URL.Query().Get("code"), nonce, auth.RequestMeta{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	})
	if err != nil {
		if errors.Is(err, identity.ErrProviderNotReady) {
			middleware.WriteAuthUnavailable(w)
			return
		}
		handleServiceError(w, err)
		return
	}

	// 3. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     identity.SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		Expires:  result.ExpiresAt,
		MaxAge:   int(time.Until(result.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, returnTo, http.StatusTemporaryRedirect)
}

// logoutResponse はPOSTログアウトのレスポンス。
type logoutResponse struct {
	Success   bool   `json:"success"`
	LogoutURL string `json:"logoutUrl"`
}

// Logout は現在のセッションを無効化し、IdPのログアウトへ誘導する。
// GET /api/auth/logout はリダイレクト、POST /api/auth/logout はJSONでログアウトURLを返す。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	caller, err := h.provider.GetUser(r)
	if err != nil {
		slog.Warn("failed to resolve caller on logout", slog.String("error", err.Error()))
		caller = nil
	}

	logoutURL, err := h.service.Logout(r.Context(), caller)
	if err != nil {
		// ログアウト失敗してもCookieはクリアする
		slog.Error("failed to logout", slog.String("error", err.Error()))
	}

	h.clearCookie(w, identity.SessionCookieName, h.config.CookieDomain)

	if logoutURL == "" {
		logoutURL = "/"
	}
	if r.Method == http.MethodPost {
		writeJSON(w, http.StatusOK, logoutResponse{Success: true, LogoutURL: logoutURL})
		return
	}
	http.Redirect(w, r, logoutURL, http.StatusTemporaryRedirect)
}

// statusErrorBody は認証状態の取得に失敗した場合のレスポンス。
type statusErrorBody struct {
	IsAuthenticated bool           `json:"isAuthenticated"`
	User            *model.Profile `json:"user"`
	Error           string         `json:"error"`
}

// Status は認証状態とサニタイズ済みプロフィールを返す。
// GET /api/auth/status
// IdPやストアの障害時は500で未認証状態を返し、panicも境界の外に出さない。
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.resolveStatus(r)
	if err != nil {
		slog.Error("failed to get auth status", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, statusErrorBody{Error: statusErrorResponse})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *AuthHandler) resolveStatus(r *http.Request) (status *auth.Status, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			status = nil
			err = errors.New("panic while resolving auth status")
			slog.Error("panic recovered in auth status", slog.Any("panic", rec))
		}
	}()
	return h.service.Status(r)
}

func (h *AuthHandler) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   loginFlowCookieTTL,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
