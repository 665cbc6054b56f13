// Package identity は外部IdPとの連携と、リクエストからの認証済みユーザー解決を提供する。
package identity

import (
	"net/http"

	"github.com/hitoshi/sessionboard/internal/model"
)

// Provider はリクエストの認証状態を解決するケイパビリティ。
// ルートガードとハンドラーはこのインターフェースのみに依存する。
type Provider interface {
	// IsAuthenticated はリクエストが有効なセッションを持つかを返す。
	IsAuthenticated(r *http.Request) (bool, error)

	// GetUser は認証済みの呼び出し元を返す。未認証の場合は(nil, nil)を返す。
	// エラーはIdPやストアに問い合わせできなかった場合のみ返す。
	GetUser(r *http.Request) (*model.Caller, error)
}
