package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/sessionboard/internal/auth"
	"github.com/hitoshi/sessionboard/internal/config"
	"github.com/hitoshi/sessionboard/internal/database"
	"github.com/hitoshi/sessionboard/internal/guard"
	"github.com/hitoshi/sessionboard/internal/handler"
	"github.com/hitoshi/sessionboard/internal/identity"
	"github.com/hitoshi/sessionboard/internal/logger"
	"github.com/hitoshi/sessionboard/internal/metrics"
	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/repository"
	"github.com/hitoshi/sessionboard/internal/security"
	"github.com/hitoshi/sessionboard/internal/session"
	"github.com/hitoshi/sessionboard/internal/user"
)

const (
	// oidcHTTPTimeout はIdPへのディスカバリ・トークン交換のタイムアウト。
	oidcHTTPTimeout = 10 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待機上限。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envを読み込んだ後、JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（LOG_LEVELを含むため、ログ初期化より前に行う）
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで停止する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, w, args)
}

func run(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, healthcheckURL(port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, commandArg(args, 0))
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		return err
	}

	slog.Info("database connection established")

	// 2. 依存関係のワイヤリング
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	router, cleanup, err := newRouter(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer cleanup()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newRouter はストア・IdPアダプタ・サービス・ルートガードを組み立ててルーターを返す。
// 返却するcleanupはレートリミッターのリソースを解放する。
// IdPのディスカバリはctxが有効な間バックグラウンドで再試行される。
func newRouter(ctx context.Context, cfg *config.Config, db *sql.DB) (http.Handler, func(), error) {
	// メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// ドメインサービス
	userService := user.NewService(userRepo, security.NewProfileSanitizer())
	sessionService := session.NewService(userRepo, sessionRepo, collector, session.Config{
		TouchInterval: cfg.SessionTouchInterval,
	})

	// IdPアダプタ
	signer := identity.NewTokenSigner(cfg.SessionSecret)
	provider := identity.NewCookieProvider(signer, sessionRepo, userRepo, sessionService)

	issuerGuard := security.NewIssuerGuard(cfg.OIDCAllowPrivateIssuer)
	if err := issuerGuard.ValidateIssuer(cfg.OIDCIssuerURL); err != nil {
		return nil, nil, fmt.Errorf("invalid OIDC issuer: %w", err)
	}

	oidcClient := identity.NewDeferredOIDC(cfg.OIDCIssuerURL)
	oidcConfig := identity.OIDCConfig{
		IssuerURL:    cfg.OIDCIssuerURL,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		HTTPClient:   issuerGuard.Client(oidcHTTPTimeout),
	}
	go func() {
		err := oidcClient.Connect(ctx, func(ctx context.Context) (*identity.OIDCClient, error) {
			return identity.NewOIDCClient(ctx, oidcConfig)
		})
		if err != nil {
			slog.Info("identity provider discovery stopped", slog.String("reason", err.Error()))
		}
	}()

	authService := auth.NewService(
		oidcClient, userService, sessionRepo, signer, provider, collector,
		auth.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAge,
			BaseURL:       cfg.BaseURL,
		},
	)

	// レートリミッター
	limiter, closeLimiter, err := newRateLimiter(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(registry),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		TrustProxy:        cfg.TrustProxy,
		RateLimiter:       limiter,

		Provider:    provider,
		GuardPolicy: guard.DefaultPolicy(cfg.DashboardPrefix, cfg.GuardExemptPaths),
		AuthReady:   oidcClient.Ready,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			DashboardPath: cfg.DashboardPrefix,
		},

		SessionService: sessionService,
		Profiles:       userService,

		DB: db,
	}

	return handler.NewRouter(deps), closeLimiter, nil
}

// newRateLimiter はREDIS_URLが設定されていればRedisの固定ウィンドウ方式、
// そうでなければプロセス内のトークンバケット方式のリミッターを返す。
// Redisに接続できなくても起動は継続する（リミッターはエラー時に通過させる）。
func newRateLimiter(ctx context.Context, cfg *config.Config) (middleware.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		limiter := middleware.NewMemoryLimiter(middleware.PerMinute(cfg.RateLimitGeneral))
		slog.Info("rate limiter configured",
			slog.String("backend", "memory"),
			slog.Int("requests_per_minute", cfg.RateLimitGeneral),
		)
		return limiter, limiter.Stop, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis is not reachable, rate limiting will fail open until it recovers",
			slog.String("error", err.Error()),
		)
	}

	slog.Info("rate limiter configured",
		slog.String("backend", "redis"),
		slog.Int("requests_per_minute", cfg.RateLimitGeneral),
	)

	closeClient := func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
	return middleware.NewRedisLimiter(client, cfg.RateLimitGeneral, time.Minute), closeClient, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// directionが空またはupの場合は未適用のマイグレーションをすべて適用し、
// downの場合はすべてロールバックする。
func runMigrate(cfg *config.Config, direction string) error {
	dir, err := database.ParseDirection(direction)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("direction", string(dir)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.Migrate(cfg.DatabaseURL, dir)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// healthcheckURL はローカルのヘルスチェックエンドポイントのURLを返す。
func healthcheckURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/api/health", port)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/health エンドポイントにHTTPリクエストを送り、200以外はエラーとする。
func runHealthcheck(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
