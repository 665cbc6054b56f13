package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/sessionboard/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "sb_session"

// SessionFinder は有効なセッションの検索に必要な操作。
type SessionFinder interface {
	FindActiveByID(ctx context.Context, sessionID string, now time.Time) (*model.Session, error)
}

// UserFinder はsubjectからのユーザー検索に必要な操作。
type UserFinder interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
}

// ActivityRecorder は認証成功時に最終アクティビティを記録する。
type ActivityRecorder interface {
	Touch(ctx context.Context, sessionID string) error
}

// CookieProvider は署名付きセッションCookieとセッションストアで認証状態を解決するProvider。
// Cookieの検証後、毎回ストアを再照会するため、無効化されたセッションは即座に認証できなくなる。
type CookieProvider struct {
	signer   *TokenSigner
	sessions SessionFinder
	users    UserFinder
	activity ActivityRecorder
	now      func() time.Time
}

// NewCookieProvider はCookieProviderを生成する。activityはnilでもよい。
func NewCookieProvider(signer *TokenSigner, sessions SessionFinder, users UserFinder, activity ActivityRecorder) *CookieProvider {
	return &CookieProvider{
		signer:   signer,
		sessions: sessions,
		users:    users,
		activity: activity,
		now:      time.Now,
	}
}

// IsAuthenticated はリクエストが有効なセッションを持つかを返す。
func (p *CookieProvider) IsAuthenticated(r *http.Request) (bool, error) {
	caller, err := p.GetUser(r)
	if err != nil {
		return false, err
	}
	return caller != nil, nil
}

// GetUser はセッションCookieから呼び出し元を解決する。
// Cookieがない・署名が不正・セッションが無効または期限切れの場合は(nil, nil)を返す。
func (p *CookieProvider) GetUser(r *http.Request) (*model.Caller, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	claims, err := p.signer.Parse(cookie.Value)
	if err != nil {
		slog.Debug("rejected session token", slog.String("error", err.Error()))
		return nil, nil
	}

	ctx := r.Context()
	// トークンが発行された行そのものを照会する。同じsidの別の行では認証しない
	session, err := p.sessions.FindActiveByID(ctx, claims.ID, p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil || session.ProviderSessionID != claims.SessionID {
		return nil, nil
	}

	user, err := p.users.FindByExternalID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	// セッションとsubjectの所有者が一致しない場合は認証しない
	if user == nil || user.ID != session.UserID {
		return nil, nil
	}

	if p.activity != nil {
		if err := p.activity.Touch(ctx, session.ID); err != nil {
			slog.Warn("failed to record session activity",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &model.Caller{
		ExternalID:        claims.Subject,
		SessionID:         session.ID,
		ProviderSessionID: claims.SessionID,
		User:              user,
	}, nil
}

// compile-time interface check
var _ Provider = (*CookieProvider)(nil)
