// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/sessionboard/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByExternalID はIdPのsubjectでユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// UpsertByExternalID はexternal_idをキーにユーザーを作成または更新する。
	// 既存ユーザーの場合はIDと作成日時を維持し、プロフィール項目のみ更新する。
	// 永続化後のユーザーを返す。
	UpsertByExternalID(ctx context.Context, user *model.User) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// 状態変更はlast_activity_atの更新とactiveのfalse化のみ。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindActiveByID はIDで有効かつ期限内のセッションを取得する。見つからない場合はnilを返す。
	FindActiveByID(ctx context.Context, sessionID string, now time.Time) (*model.Session, error)

	// FindActiveByProviderSessionID はユーザーのIdPセッションIDに対応する有効かつ期限内のセッションを取得する。
	// 見つからない場合はnilを返す。
	FindActiveByProviderSessionID(ctx context.Context, userID, providerSessionID string, now time.Time) (*model.Session, error)

	// ListActiveByUserID はユーザーの有効なセッションをlast_activity_at降順で返す。
	// 該当がない場合は空スライスを返す。
	ListActiveByUserID(ctx context.Context, userID string) ([]*model.Session, error)

	// Deactivate はユーザー所有の有効なセッションを無効化し、last_activity_atをnowに更新する。
	// 単一のUPDATE文で実行する。対象が存在しない・他ユーザーのもの・既に無効の場合はfalseを返す。
	Deactivate(ctx context.Context, sessionID, userID string, now time.Time) (bool, error)

	// Touch はIDで指定した有効なセッションのlast_activity_atを更新する。
	// 最終アクティビティがstaleBeforeより古い場合のみ更新し、更新したかどうかを返す。
	Touch(ctx context.Context, sessionID string, now, staleBefore time.Time) (bool, error)
}
