package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/sessionboard/internal/model"
)

// ErrorResponseBody はAPIエラーのJSON表現。
// ダッシュボードはcodeで分岐し、messageとactionをそのまま表示する。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func newErrorResponseBody(apiErr *model.APIError) ErrorResponseBody {
	if apiErr == nil {
		apiErr = model.NewInternalError()
	}
	return ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteErrorResponse はAPIエラーを指定ステータスで書き込む。
// apiErrがnilの場合はINTERNAL_ERRORとして返す。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := newErrorResponseBody(apiErr)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response",
			slog.String("code", body.Code),
			slog.String("error", err.Error()),
		)
	}
}

// WriteRetryableError はRetry-Afterヘッダー付きでAPIエラーを書き込む。
// 待ち時間は秒単位に切り上げ、最低1秒とする。
func WriteRetryableError(w http.ResponseWriter, statusCode int, apiErr *model.APIError, retryAfter time.Duration) {
	sec := int(math.Ceil(retryAfter.Seconds()))
	if sec < 1 {
		sec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(sec))
	WriteErrorResponse(w, statusCode, apiErr)
}

// WriteAuthUnavailable はIdPの準備待ちを503で返す。
func WriteAuthUnavailable(w http.ResponseWriter) {
	WriteRetryableError(w, http.StatusServiceUnavailable, model.NewAuthUnavailableError(), time.Second)
}

// WriteInternalServerError は500を返す。原因はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
