// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, session, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized              = "UNAUTHORIZED"
	ErrCodeInvalidArgument           = "INVALID_ARGUMENT"
	ErrCodeUserNotFound              = "USER_NOT_FOUND"
	ErrCodeSessionNotFoundOrInactive = "SESSION_NOT_FOUND_OR_INACTIVE"
	ErrCodeInternal                  = "INTERNAL_ERROR"
	ErrCodeForbiddenRole             = "FORBIDDEN_ROLE"
	ErrCodeForbiddenPermission       = "FORBIDDEN_PERMISSION"
	ErrCodeProcedureNotFound         = "PROCEDURE_NOT_FOUND"
	ErrCodeRateLimitExceeded         = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFTokenInvalid          = "CSRF_TOKEN_INVALID"
	ErrCodeAuthUnavailable           = "AUTH_UNAVAILABLE"
	ErrCodeNotFound                  = "NOT_FOUND"
	ErrCodeMethodNotAllowed          = "METHOD_NOT_ALLOWED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidArgumentError は必須入力の欠落・不正を表すエラーを生成する。
func NewInvalidArgumentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewSessionNotFoundOrInactiveError はセッションが存在しない・他ユーザーのもの・
// 既に無効化済みのいずれかである場合のエラーを生成する。
// どの条件に該当したかは区別しない。
func NewSessionNotFoundOrInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFoundOrInactive,
		Message:  "指定されたセッションは見つからないか、既に無効です。",
		Category: "session",
		Action:   "セッション一覧を再読み込みしてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewForbiddenRoleError はロール不足による拒否エラーを生成する。
func NewForbiddenRoleError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenRole,
		Message:  "このページにアクセスするためのロールがありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewForbiddenPermissionError はパーミッション不足による拒否エラーを生成する。
func NewForbiddenPermissionError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenPermission,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewProcedureNotFoundError は未定義のRPCプロシージャ呼び出しのエラーを生成する。
func NewProcedureNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeProcedureNotFound,
		Message:  fmt.Sprintf("プロシージャが見つかりません: %s", name),
		Category: "validation",
		Action:   "呼び出し先のプロシージャ名を確認してください。",
	}
}

// NewRateLimitExceededError はレート制限超過のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "時間をおいて再度お試しください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークン検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewAuthUnavailableError は認証状態を確定できない間の保留応答を生成する。
func NewAuthUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthUnavailable,
		Message:  "認証状態を確認しています。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotFoundError は存在しないエンドポイントへのリクエストのエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "エンドポイントが見つかりません。",
		Category: "validation",
		Action:   "リクエストのパスを確認してください。",
	}
}

// NewMethodNotAllowedError は許可されていないHTTPメソッドのエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  "このHTTPメソッドは許可されていません。",
		Category: "validation",
		Action:   "リクエストのメソッドを確認してください。",
	}
}
