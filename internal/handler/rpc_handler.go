package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sessionboard/internal/middleware"
	"github.com/hitoshi/sessionboard/internal/model"
)

// RPCプロシージャ名
const (
	ProcSessionsList   = "sessions.list"
	ProcSessionsDelete = "sessions.delete"
	ProcAuthStatus     = "auth.status"
)

// maxRPCBodyBytes はRPC入力の上限サイズ。
const maxRPCBodyBytes = 64 << 10

// procedure はRPCプロシージャの実装。inputは空の場合がある。
type procedure func(w http.ResponseWriter, r *http.Request, input json.RawMessage)

// RPCHandler は POST /api/rpc/{procedure} を固定のプロシージャ表へ振り分ける。
// エラーの分類とHTTPステータスはRESTエンドポイントと同一。
type RPCHandler struct {
	procedures map[string]procedure
}

// NewRPCHandler はRPCHandlerを生成する。
func NewRPCHandler(sessions *SessionHandler, authHandler *AuthHandler) *RPCHandler {
	h := &RPCHandler{}
	h.procedures = map[string]procedure{
		ProcSessionsList: func(w http.ResponseWriter, r *http.Request, _ json.RawMessage) {
			sessions.ListSessions(w, r)
		},
		ProcSessionsDelete: func(w http.ResponseWriter, r *http.Request, input json.RawMessage) {
			var req struct {
				ID string `json:"id"`
			}
			if err := decodeRPCInput(input, &req); err != nil {
				writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidArgumentError("入力のJSONが不正です"))
				return
			}
			caller, _ := middleware.CallerFromContext(r.Context())
			if err := sessions.service.Delete(r.Context(), caller, req.ID); err != nil {
				handleServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, successResponse{Success: true})
		},
		ProcAuthStatus: func(w http.ResponseWriter, r *http.Request, _ json.RawMessage) {
			authHandler.Status(w, r)
		},
	}
	return h
}

// Procedures は登録済みのプロシージャ名を返す。
func (h *RPCHandler) Procedures() []string {
	names := make([]string, 0, len(h.procedures))
	for name := range h.procedures {
		names = append(names, name)
	}
	return names
}

// Dispatch はプロシージャ名に対応する実装を呼び出す。
// POST /api/rpc/{procedure}
func (h *RPCHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "procedure")
	proc, ok := h.procedures[name]
	if !ok {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProcedureNotFoundError(name))
		return
	}

	input, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBodyBytes+1))
	if err != nil || len(input) > maxRPCBodyBytes {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidArgumentError("入力を読み取れません"))
		return
	}

	proc(w, r, json.RawMessage(input))
}

// decodeRPCInput は入力JSONをデコードする。空の入力はゼロ値として扱う。
func decodeRPCInput(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid rpc input: %w", err)
	}
	return nil
}
