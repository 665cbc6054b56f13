// Package guard はリクエストごとのアクセス可否を判定するルートガードを提供する。
// パスをクラスに分類し、認証状態と認可述語から結果（Outcome）を決定する。
package guard

import (
	"context"
	"strings"

	"github.com/hitoshi/sessionboard/internal/model"
)

// Class はパスの分類。
type Class string

const (
	ClassPublic    Class = "public"
	ClassDashboard Class = "dashboard"
	ClassProtected Class = "protected"
	ClassGuestOnly Class = "guest-only"
)

// Outcome はガードの判定結果。
// OutcomeLoadingは認証状態が未確定であることを表し、許可・拒否のどちらとしても扱ってはならない。
type Outcome string

const (
	OutcomeLoading        Outcome = "loading"
	OutcomeAllow          Outcome = "allow"
	OutcomeDenyAuth       Outcome = "deny-auth"
	OutcomeDenyGuest      Outcome = "deny-guest"
	OutcomeDenyRole       Outcome = "deny-role"
	OutcomeDenyPermission Outcome = "deny-permission"
)

// Authorizer は認証済みの呼び出し元がパスにアクセスできるかを判定する。
// OutcomeAllow、OutcomeDenyRole、OutcomeDenyPermissionのいずれかを返す。
type Authorizer func(ctx context.Context, caller *model.Caller, path string) Outcome

// AllowAll は常にアクセスを許可するAuthorizer。
func AllowAll(context.Context, *model.Caller, string) Outcome {
	return OutcomeAllow
}

// AuthState はリクエスト時点の認証状態。
// Resolved=falseの間はCallerを参照しない。
type AuthState struct {
	Resolved bool
	Caller   *model.Caller
}

// Policy はパス分類と認可のルール。
type Policy struct {
	// PublicPaths は認証を一切行わない完全一致パス。
	PublicPaths []string
	// PublicPrefixes は認証を一切行わないパスのプレフィックス（静的アセット等）。
	PublicPrefixes []string
	// DashboardPrefix 配下は例外なく認証を要求する。
	DashboardPrefix string
	// ExemptPaths は保護対象のうち認証を免除する完全一致パス。
	ExemptPaths []string
	// ExemptPrefixes は保護対象のうち認証を免除するプレフィックス（独自の署名検証を持つWebhook等）。
	ExemptPrefixes []string
	// GuestOnlyPaths は未認証でのみアクセスできるパス。
	GuestOnlyPaths []string
	// LoginPath は未認証時のリダイレクト先。
	LoginPath string
	// APIPrefix 配下の拒否はリダイレクトではなくJSONで応答する。
	APIPrefix string
	// Authorizer は認証成功後に評価する。nilの場合はAllowAll。
	Authorizer Authorizer
}

// DefaultPolicy は標準のルールを返す。
// extraExemptは"/"で終わるものをプレフィックス、それ以外を完全一致として扱う。
func DefaultPolicy(dashboardPrefix string, extraExempt []string) Policy {
	if dashboardPrefix == "" {
		dashboardPrefix = "/dashboard"
	}

	p := Policy{
		PublicPaths: []string{
			"/api/auth/callback",
			"/api/auth/logout",
			"/api/auth/status",
			"/api/rpc/auth.status",
			"/api/csrf-token",
			"/metrics",
			"/favicon.ico",
			"/robots.txt",
		},
		PublicPrefixes:  []string{"/static/", "/assets/"},
		DashboardPrefix: dashboardPrefix,
		ExemptPaths:     []string{"/api/health"},
		ExemptPrefixes:  []string{"/api/webhooks/"},
		GuestOnlyPaths:  []string{"/api/auth/login"},
		LoginPath:       "/api/auth/login",
		APIPrefix:       "/api/",
		Authorizer:      AllowAll,
	}

	for _, e := range extraExempt {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.HasSuffix(e, "/") {
			p.ExemptPrefixes = append(p.ExemptPrefixes, e)
		} else {
			p.ExemptPaths = append(p.ExemptPaths, e)
		}
	}
	return p
}

// Classify はパスをクラスに分類する。
// ダッシュボード配下はPublicPrefixes等に一致しても常にClassDashboardとなる。
func (p Policy) Classify(path string) Class {
	if p.isDashboard(path) {
		return ClassDashboard
	}
	if contains(p.PublicPaths, path) || hasAnyPrefix(path, p.PublicPrefixes) {
		return ClassPublic
	}
	if contains(p.GuestOnlyPaths, path) {
		return ClassGuestOnly
	}
	return ClassProtected
}

// IsExempt はClassProtectedのパスが認証免除リストに含まれるかを返す。
func (p Policy) IsExempt(path string) bool {
	if p.Classify(path) != ClassProtected {
		return false
	}
	return contains(p.ExemptPaths, path) || hasAnyPrefix(path, p.ExemptPrefixes)
}

// IsAPI はパスがJSON応答対象のAPIかを返す。
func (p Policy) IsAPI(path string) bool {
	return p.APIPrefix != "" && strings.HasPrefix(path, p.APIPrefix)
}

// Evaluate はパスと認証状態からOutcomeを決定する。
// 認証を要するパスで状態が未確定の場合はOutcomeLoadingを返す。
func (p Policy) Evaluate(ctx context.Context, path string, state AuthState) Outcome {
	class := p.Classify(path)

	if class == ClassPublic || p.IsExempt(path) {
		return OutcomeAllow
	}
	if !state.Resolved {
		return OutcomeLoading
	}

	if class == ClassGuestOnly {
		if state.Caller != nil {
			return OutcomeDenyGuest
		}
		return OutcomeAllow
	}

	if state.Caller == nil {
		return OutcomeDenyAuth
	}

	authorize := p.Authorizer
	if authorize == nil {
		authorize = AllowAll
	}
	return authorize(ctx, state.Caller, path)
}

// isDashboard は/dashboardと/dashboard/...に一致し、/dashboardxには一致しない。
func (p Policy) isDashboard(path string) bool {
	prefix := strings.TrimRight(p.DashboardPrefix, "/")
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
