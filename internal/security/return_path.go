package security

import (
	"net/url"
	"strings"
)

// SafeReturnPath はログイン後の戻り先として安全な同一オリジンの相対パスを返す。
// 絶対URL、スキーム相対URL("//host")、バックスラッシュを含むものはfallbackに置き換える。
func SafeReturnPath(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return fallback
	}
	if strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return fallback
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return u.RequestURI()
}
