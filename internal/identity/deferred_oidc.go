package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// ErrProviderNotReady はIdPのディスカバリが完了していないことを表す。
var ErrProviderNotReady = errors.New("identity provider is not ready")

const (
	initialDiscoveryBackoff = 1 * time.Second
	maxDiscoveryBackoff     = 1 * time.Minute
)

// DeferredOIDC はディスカバリ完了前から利用できるOIDCClientのラッパー。
// IdPが起動時に到達不能でもAPIサーバーは起動し、ディスカバリ完了まではReadyがfalseを返す。
// ルートガードはReadyがfalseの間、認証状態を未確定（loading）として扱う。
type DeferredOIDC struct {
	issuer string
	client atomic.Pointer[OIDCClient]
}

// NewDeferredOIDC はDeferredOIDCを生成する。
func NewDeferredOIDC(issuerURL string) *DeferredOIDC {
	return &DeferredOIDC{issuer: strings.TrimRight(issuerURL, "/")}
}

// Ready はディスカバリが完了しているかを返す。
func (d *DeferredOIDC) Ready() bool {
	return d.client.Load() != nil
}

// Set はディスカバリ済みのクライアントを設定する。
func (d *DeferredOIDC) Set(c *OIDCClient) {
	d.client.Store(c)
}

// AuthCodeURL は認可URLを返す。未準備の場合は空文字を返す。
func (d *DeferredOIDC) AuthCodeURL(state, nonce string) string {
	c := d.client.Load()
	if c == nil {
		return ""
	}
	return c.AuthCodeURL(state, nonce)
}

// Exchange は認可コードを交換する。未準備の場合はErrProviderNotReadyを返す。
func (d *DeferredOIDC) Exchange(ctx context.Context, code, nonce string) (*Claims, error) {
	c := d.client.Load()
	if c == nil {
		return nil, ErrProviderNotReady
	}
	return c.Exchange(ctx, code, nonce)
}

// LogoutURL はIdPのログアウトURLを返す。ディスカバリの完了を必要としない。
func (d *DeferredOIDC) LogoutURL(returnTo string) string {
	return d.issuer + "/logout?redirect=" + url.QueryEscape(returnTo)
}

// Connect はconnectが成功するまで指数バックオフで再試行し、成功したクライアントを設定する。
// ctxがキャンセルされた場合はctx.Err()を返す。
func (d *DeferredOIDC) Connect(ctx context.Context, connect func(ctx context.Context) (*OIDCClient, error)) error {
	for attempt := 0; ; attempt++ {
		c, err := connect(ctx)
		if err == nil {
			d.Set(c)
			slog.Info("identity provider discovered",
				slog.String("issuer", d.issuer),
				slog.Int("attempts", attempt+1),
			)
			return nil
		}

		delay := discoveryBackoff(attempt)
		slog.Warn("identity provider discovery failed, retrying",
			slog.String("issuer", d.issuer),
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// discoveryBackoff は失敗回数に応じた待機時間を返す。初回1秒、2倍ずつ増加、最大1分。
func discoveryBackoff(attempt int) time.Duration {
	delay := initialDiscoveryBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxDiscoveryBackoff {
			return maxDiscoveryBackoff
		}
	}
	return delay
}
