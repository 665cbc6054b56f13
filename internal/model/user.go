// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// ExternalIDはIdPが発行するsubjectで、ユーザーごとに一意。
type User struct {
	ID         string
	ExternalID string
	Email      string
	GivenName  string
	FamilyName string
	Picture    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Caller は認証済みのリクエスト送信者を表す。
// IdPアダプタが解決し、ガード通過後にリクエストコンテキストへ格納される。
type Caller struct {
	ExternalID string
	// SessionID はセッションCookieが発行された sessions 行のID。
	SessionID         string
	ProviderSessionID string
	User              *User
}

// Profile はAPIで返却するサニタイズ済みのユーザープロフィール。
// 内部IDや外部IDは含めない。
type Profile struct {
	Email      string `json:"email"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	Picture    string `json:"picture,omitempty"`
}
