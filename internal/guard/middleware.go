package guard

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/sessionboard/internal/identity"
	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/model"
)

// OutcomeRecorder はガードの判定結果を記録する。
type OutcomeRecorder interface {
	RecordGuardOutcome(class, outcome string)
}

// Config はガードミドルウェアの設定。
type Config struct {
	Provider identity.Provider
	Policy   Policy
	// Recorder はnilでもよい。
	Recorder OutcomeRecorder
	// Ready は認証基盤が応答可能かを返す。nilの場合は常に準備済みとみなす。
	Ready func() bool
}

// NewMiddleware はハンドラー実行前にアクセス可否を判定するミドルウェアを返す。
func NewMiddleware(cfg Config) func(next http.Handler) http.Handler {
	policy := cfg.Policy

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			class := policy.Classify(path)

			// 公開・免除パスでは認証状態を解決しない
			if class == ClassPublic || policy.IsExempt(path) {
				record(cfg.Recorder, class, OutcomeAllow)
				next.ServeHTTP(w, r)
				return
			}

			state := resolve(cfg, r)
			outcome := policy.Evaluate(r.Context(), path, state)
			record(cfg.Recorder, class, outcome)

			switch outcome {
			case OutcomeAllow:
				if state.Caller != nil {
					r = r.WithContext(middleware.ContextWithCaller(r.Context(), state.Caller))
				}
				next.ServeHTTP(w, r)
			case OutcomeDenyAuth:
				if policy.IsAPI(path) {
					middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				http.Redirect(w, r, loginRedirectURL(policy.LoginPath, r.URL), http.StatusFound)
			case OutcomeDenyGuest:
				http.Redirect(w, r, policy.DashboardPrefix, http.StatusFound)
			case OutcomeDenyRole:
				middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenRoleError())
			case OutcomeDenyPermission:
				middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenPermissionError())
			default:
				// loadingおよび未知の結果は保留とし、再試行を促す
				middleware.WriteAuthUnavailable(w)
			}
		})
	}
}

// resolve はリクエストの認証状態を解決する。
// IdPやストアへの問い合わせに失敗した場合は未認証として確定させる。
func resolve(cfg Config, r *http.Request) AuthState {
	if cfg.Ready != nil && !cfg.Ready() {
		return AuthState{Resolved: false}
	}

	caller, err := cfg.Provider.GetUser(r)
	if err != nil {
		slog.Warn("failed to resolve caller",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return AuthState{Resolved: true}
	}
	return AuthState{Resolved: true, Caller: caller}
}

// loginRedirectURL はログイン後に元のパスへ戻るためのURLを組み立てる。
func loginRedirectURL(loginPath string, original *url.URL) string {
	target := original.Path
	if original.RawQuery != "" {
		target += "?" + original.RawQuery
	}
	return loginPath + "?post_login_redirect_url=" + url.QueryEscape(target)
}

func record(r OutcomeRecorder, class Class, outcome Outcome) {
	if r == nil {
		return
	}
	r.RecordGuardOutcome(string(class), string(outcome))
}
