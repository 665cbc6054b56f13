// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/sessionboard/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	callerContextKey    = contextKey("caller")
	logFieldsContextKey = contextKey("log_fields")
)

// ContextWithCaller はコンテキストに認証済みの呼び出し元を注入する。
// ロギングミドルウェアの内側で呼ばれた場合は、アクセスログにもユーザーIDを記録する。
func ContextWithCaller(ctx context.Context, caller *model.Caller) context.Context {
	if caller != nil && caller.User != nil {
		if fields, ok := ctx.Value(logFieldsContextKey).(*logFields); ok {
			fields.userID = caller.User.ID
		}
	}
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext はリクエストコンテキストから呼び出し元を取得する。
// ルートガードを通過していないリクエストでは(nil, false)を返す。
func CallerFromContext(ctx context.Context) (*model.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(*model.Caller)
	if !ok || caller == nil {
		return nil, false
	}
	return caller, true
}
