package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/clkk/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法、必要に応じて遷移先を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Redirect string `json:"redirect,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Redirect: apiErr.Redirect,
	})
}

// WriteError はエラー分類に応じたステータスコードと統一フォーマットでレスポンスを書き込む。
// fallbackは分類できないエラーのときに表示するメッセージ。
func WriteError(w http.ResponseWriter, err error, fallback string) {
	WriteErrorResponse(w, StatusForError(err), model.ToAPIError(err, fallback))
}

// StatusForError はエラー分類をHTTPステータスコードに対応付ける。
func StatusForError(err error) int {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeUnauthorized:
			return http.StatusUnauthorized
		case model.ErrCodeUserNotFound:
			return http.StatusNotFound
		case model.ErrCodeInvalidInput:
			return http.StatusBadRequest
		}
	}

	switch {
	case errors.Is(err, model.ErrSessionExpired), errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, model.ErrEmailExists), errors.Is(err, model.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "Something went wrong.",
		Category: "system",
		Action:   "Please try again later.",
	})
}
