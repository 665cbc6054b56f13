package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig はOIDCクライアントの設定。
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient はディスカバリ・トークン交換・JWKS取得に使用する。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// Claims はIDトークンから取り出したユーザー情報。
type Claims struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	Picture    string
	// SessionID はIdPのセッションID（sidクレーム）。IdPが発行しない場合は空。
	SessionID string
}

// OIDCClient は認可コードフローでIdPと通信する。
type OIDCClient struct {
	issuer     string
	httpClient *http.Client
	oauth      oauth2.Config
	verifier   *oidc.IDTokenVerifier
}

// NewOIDCClient はIssuerのディスカバリを行いOIDCClientを生成する。
func NewOIDCClient(ctx context.Context, cfg OIDCConfig) (*OIDCClient, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	ctx = oidc.ClientContext(ctx, httpClient)
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCClient{
		issuer:     strings.TrimRight(cfg.IssuerURL, "/"),
		httpClient: httpClient,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthCodeURL はIdPの認可エンドポイントURLを返す。
func (c *OIDCClient) AuthCodeURL(state, nonce string) string {
	return c.oauth.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange は認可コードをトークンに交換し、検証済みのIDトークンからクレームを返す。
func (c *OIDCClient) Exchange(ctx context.Context, code, nonce string) (*Claims, error) {
	ctx = oidc.ClientContext(ctx, c.httpClient)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("id_token missing from token response")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, fmt.Errorf("id_token nonce mismatch")
	}

	var extra struct {
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
		SessionID  string `json:"sid"`
	}
	if err := idToken.Claims(&extra); err != nil {
		return nil, fmt.Errorf("failed to parse id_token claims: %w", err)
	}

	return &Claims{
		Subject:    idToken.Subject,
		Email:      extra.Email,
		GivenName:  extra.GivenName,
		FamilyName: extra.FamilyName,
		Picture:    extra.Picture,
		SessionID:  extra.SessionID,
	}, nil
}

// LogoutURL はIdP側のセッションを終了させるURLを返す。
func (c *OIDCClient) LogoutURL(returnTo string) string {
	return c.issuer + "/logout?redirect=" + url.QueryEscape(returnTo)
}
