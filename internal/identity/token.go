package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "sessionboard"

// ErrInvalidToken はセッショントークンの署名・形式・有効期限が不正な場合に返る。
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims はセッションCookieに格納するクレーム。
// SubjectにIdPのsubject、IDに発行元のsessions行のID、SessionIDにIdPのセッションIDを持つ。
// 同じIdPセッションで再ログインしても、無効化済みの行に対して発行されたトークンは復活しない。
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenSigner はHS256でセッショントークンを署名・検証する。
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewTokenSigner はTokenSignerを生成する。
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), now: time.Now}
}

// Sign はsubject、sessions行のID、IdPセッションIDを含む署名済みトークンを返す。
func (s *TokenSigner) Sign(subject, sessionRowID, sessionID string, expiresAt time.Time) (string, error) {
	if subject == "" || sessionRowID == "" || sessionID == "" {
		return "", fmt.Errorf("subject, session row ID and session ID are required")
	}

	now := s.now()
	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionRowID,
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Parse はトークンを検証してクレームを返す。
// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
func (s *TokenSigner) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing sub, jti or sid", ErrInvalidToken)
	}
	return claims, nil
}
