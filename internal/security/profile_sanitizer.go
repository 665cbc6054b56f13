package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/sessionboard/internal/model"
)

// ProfileSanitizer はIdP由来のプロフィール項目からマークアップを除去する。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はタグを一切許可しないポリシーでProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// Profile はユーザーをAPI返却用のプロフィールに変換する。
// pictureはhttpsの絶対URLのみ残す。
func (s *ProfileSanitizer) Profile(u *model.User) model.Profile {
	if u == nil {
		return model.Profile{}
	}
	return model.Profile{
		Email:      s.text(u.Email),
		GivenName:  s.text(u.GivenName),
		FamilyName: s.text(u.FamilyName),
		Picture:    safePictureURL(u.Picture),
	}
}

// text はタグを除去した平文を返す。
// StrictPolicyはエスケープ済みの文字列を返すため、JSON出力用に元に戻す。
func (s *ProfileSanitizer) text(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

func safePictureURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ""
	}
	return u.String()
}
