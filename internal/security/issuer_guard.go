// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// blockedPrefixes はIdPとして受け付けないアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	// クラウドメタデータIP (169.254.169.254) を含む
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// IssuerGuard はOIDCプロバイダへの外向き通信を制限する。
// AllowPrivateがfalseの場合、IdPはhttpsかつ公開アドレスである必要がある。
type IssuerGuard struct {
	AllowPrivate bool
}

// NewIssuerGuard はIssuerGuardを生成する。
// allowPrivateはローカルのIdPモックを使う開発環境向け。
func NewIssuerGuard(allowPrivate bool) *IssuerGuard {
	return &IssuerGuard{AllowPrivate: allowPrivate}
}

// Client はディスカバリ・トークン交換・JWKS取得に使うHTTPクライアントを返す。
// safeurlはDialerのControlフックで名前解決後のIPを検証するため、
// DNS再バインディングでも内部ネットワークに到達しない。
func (g *IssuerGuard) Client(timeout time.Duration) *http.Client {
	if g.AllowPrivate {
		return &http.Client{Timeout: timeout}
	}

	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(cfg).Client
}

// ValidateIssuer はIssuer URLを名前解決せずに静的に検証する。
func (g *IssuerGuard) ValidateIssuer(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty issuer URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in issuer URL: %s", rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if g.AllowPrivate {
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("disallowed issuer scheme: %s", scheme)
		}
		return nil
	}
	if scheme != "https" {
		return fmt.Errorf("issuer must use https: %s", rawURL)
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked issuer host: %s", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && isBlockedAddr(addr) {
		return fmt.Errorf("blocked issuer address: %s", addr)
	}

	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
