package model

import "time"

// Session はユーザーのログインセッションを表す。
// Active=falseは終端状態で、再度有効化されることはない。
// 物理削除は行わず、履歴として残す。
type Session struct {
	ID                string
	UserID            string
	ProviderSessionID string
	UserAgent         string
	IPAddress         string
	CreatedAt         time.Time
	LastActivityAt    time.Time
	ExpiresAt         time.Time
	Active            bool
}

// SessionSummary はセッション一覧APIで返却する要約。
// トークンやIdPのセッションIDは含めない。
type SessionSummary struct {
	ID             string    `json:"id"`
	UserAgent      string    `json:"userAgent"`
	IPAddress      string    `json:"ipAddress"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	IsCurrent      bool      `json:"isCurrent"`
}

// NewSessionSummary はセッションを要約に変換する。
// currentProviderSessionIDと一致するセッションをisCurrentとする。
func NewSessionSummary(s *Session, currentProviderSessionID string) SessionSummary {
	return SessionSummary{
		ID:             s.ID,
		UserAgent:      s.UserAgent,
		IPAddress:      s.IPAddress,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		IsCurrent:      currentProviderSessionID != "" && s.ProviderSessionID == currentProviderSessionID,
	}
}
