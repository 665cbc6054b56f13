package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/sessionboard/internal/guard"
	"github.com/hitoshi/sessionboard/internal/identity"
	"github.com/hitoshi/sessionboard/internal/metrics"
	"github.com/hitoshi/sessionboard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	CORSAllowedOrigin string
	CookieSecure      bool
	CookieDomain      string
	TrustProxy        bool
	RateLimiter       middleware.Limiter

	// ルートガード
	Provider    identity.Provider
	GuardPolicy guard.Policy
	AuthReady   func() bool

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// セッション
	SessionService SessionServiceInterface
	Profiles       ProfileRenderer

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → (RealIP) → Logging → Metrics → SecurityHeaders → CORS → RouteGuard → CSRF → RateLimit
//
// ルートガードがパスを分類し、公開パス以外では呼び出し元をコンテキストへ注入する。
// 未認証のリクエストはCSRF検証より先にガードで拒否される。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	csrfConfig := middleware.CSRFConfig{
		CookieSecure:   deps.CookieSecure,
		CookieDomain:   deps.CookieDomain,
		ExemptPrefixes: deps.GuardPolicy.ExemptPrefixes,
	}

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(guard.NewMiddleware(guard.Config{
		Provider: deps.Provider,
		Policy:   deps.GuardPolicy,
		Recorder: collector,
		Ready:    deps.AuthReady,
	}))
	r.Use(middleware.NewCSRFMiddleware(csrfConfig))
	if deps.RateLimiter != nil {
		r.Use(middleware.NewRateLimitMiddleware(deps.RateLimiter))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Provider, deps.AuthConfig)
	sessionHandler := NewSessionHandler(deps.SessionService)
	rpcHandler := NewRPCHandler(sessionHandler, authHandler)
	dashboardHandler := NewDashboardHandler(deps.SessionService, deps.Profiles)
	healthHandler := NewHealthHandler(deps.DB)

	// サブルーターへ引き継がれるよう、ルート定義より先に設定する
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	// --- 公開・免除ルート ---
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
	r.Get("/api/health", healthHandler.Health)

	// 認証ルート（OIDCフロー）
	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/logout", authHandler.Logout)
		r.Post("/logout", authHandler.Logout)
		r.Get("/status", authHandler.Status)
	})

	// --- 認証が必要なルート ---

	// セッション管理
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", sessionHandler.ListSessions)
		// IDなしのDELETEはサービス層でINVALID_ARGUMENTになる
		r.Delete("/", sessionHandler.DeleteSession)
		r.Delete("/{id}", sessionHandler.DeleteSession)
	})

	// RPC
	r.Post("/api/rpc/{procedure}", rpcHandler.Dispatch)

	// ダッシュボード
	dashboard := deps.GuardPolicy.DashboardPrefix
	if dashboard == "" {
		dashboard = "/dashboard"
	}
	r.Get(dashboard, dashboardHandler.Show)
	r.Get(dashboard+"/*", dashboardHandler.Show)

	return r
}
