// Package auth はOIDCのログイン・コールバック・ログアウトと認証状態の参照を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sessionboard/internal/identity"
	"github.com/hitoshi/sessionboard/internal/model"
	"github.com/hitoshi/sessionboard/internal/repository"
)

// OIDCProvider はIdPとの認可コードフローのインターフェース。
type OIDCProvider interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (*identity.Claims, error)
	LogoutURL(returnTo string) string
}

// UserProvisioner はクレームからユーザーを作成・更新し、プロフィールを返す。
type UserProvisioner interface {
	Provision(ctx context.Context, claims identity.Claims) (*model.User, error)
	Profile(u *model.User) model.Profile
}

// LoginRecorder はログイン結果を記録する。
type LoginRecorder interface {
	RecordLogin(result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	BaseURL       string // IdPログアウト後の戻り先
}

// RequestMeta はセッション作成時に記録するリクエスト情報。
type RequestMeta struct {
	UserAgent string
	IPAddress string
}

// LoginResult はコールバック処理の結果。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
	Session   *model.Session
}

// Status は認証状態の応答。未認証の場合Userはnil。
type Status struct {
	IsAuthenticated bool           `json:"isAuthenticated"`
	User            *model.Profile `json:"user"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oidc        OIDCProvider
	users       UserProvisioner
	sessionRepo repository.SessionRepository
	signer      *identity.TokenSigner
	provider    identity.Provider
	recorder    LoginRecorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	oidc OIDCProvider,
	users UserProvisioner,
	sessionRepo repository.SessionRepository,
	signer *identity.TokenSigner,
	provider identity.Provider,
	recorder LoginRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		oidc:        oidc,
		users:       users,
		sessionRepo: sessionRepo,
		signer:      signer,
		provider:    provider,
		recorder:    recorder,
		config:      config,
		now:         time.Now,
	}
}

// LoginURL はIdPの認可URLを返す。
func (s *Service) LoginURL(state, nonce string) string {
	return s.oidc.AuthCodeURL(state, nonce)
}

// HandleCallback は認可コードを交換し、ユーザーを登録してセッションを発行する。
// IdPがsidを発行しない場合はランダムなセッションIDを割り当てる。
func (s *Service) HandleCallback(ctx context.Context, code, nonce string, meta RequestMeta) (result *LoginResult, err error) {
	defer func() {
		if s.recorder == nil {
			return
		}
		if err != nil {
			s.recorder.RecordLogin("error")
			return
		}
		s.recorder.RecordLogin("ok")
	}()

	if code == "" {
		return nil, model.NewInvalidArgumentError("認可コードがありません")
	}

	claims, err := s.oidc.Exchange(ctx, code, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	user, err := s.users.Provision(ctx, *claims)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, user, claims.SessionID, meta)
	if err != nil {
		return nil, err
	}

	token, err := s.signer.Sign(user.ExternalID, session.ID, session.ProviderSessionID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)

	return &LoginResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
		Session:   session,
	}, nil
}

// openSession はIdPセッションに対応する有効なセッションを返す。
// 同じユーザー・同じIdPセッションで既に有効な行があればそれを再利用し、なければ新規作成する。
// 無効化済みの行は再利用しないため、その行に発行されたCookieは認証に使えないままになる。
func (s *Service) openSession(ctx context.Context, user *model.User, providerSessionID string, meta RequestMeta) (*model.Session, error) {
	now := s.now()

	if providerSessionID == "" {
		generated, err := generateSessionID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session ID: %w", err)
		}
		providerSessionID = generated
	} else {
		existing, err := s.sessionRepo.FindActiveByProviderSessionID(ctx, user.ID, providerSessionID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to look up session: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	session := &model.Session{
		ID:                uuid.New().String(),
		UserID:            user.ID,
		ProviderSessionID: providerSessionID,
		UserAgent:         meta.UserAgent,
		IPAddress:         meta.IPAddress,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		Active:            true,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Logout は現在のセッションを無効化し、IdPのログアウトURLを返す。
// 未認証やセッションが既に無効な場合もログアウトURLを返す。
func (s *Service) Logout(ctx context.Context, caller *model.Caller) (string, error) {
	logoutURL := s.oidc.LogoutURL(s.config.BaseURL)
	if caller == nil || caller.User == nil || caller.SessionID == "" {
		return logoutURL, nil
	}

	// 所有者の確認はDeactivateのWHERE句で行う
	ok, err := s.sessionRepo.Deactivate(ctx, caller.SessionID, caller.User.ID, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to deactivate session: %w", err)
	}
	if !ok {
		return logoutURL, nil
	}

	slog.Info("user logged out",
		slog.String("user_id", caller.User.ID),
		slog.String("session_id", caller.SessionID),
	)
	return logoutURL, nil
}

// Status はリクエストの認証状態とサニタイズ済みプロフィールを返す。
func (s *Service) Status(r *http.Request) (*Status, error) {
	caller, err := s.provider.GetUser(r)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve authentication status: %w", err)
	}
	if caller == nil || caller.User == nil {
		return &Status{IsAuthenticated: false}, nil
	}

	profile := s.users.Profile(caller.User)
	return &Status{IsAuthenticated: true, User: &profile}, nil
}

// NewRandomToken はstate・nonce用の暗号的に安全なランダム値を返す。
func NewRandomToken() (string, error) {
	return generateSessionID()
}

// generateSessionID は暗号的に安全なランダムIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
