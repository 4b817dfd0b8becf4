package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/clkk/internal/model"
	"google.golang.org/api/googleapi"
)

// classifyError はIdentity Toolkitのエラーをドメインのエラー分類に対応付ける。
// APIのエラーメッセージは "TOKEN_EXPIRED" や "TOO_MANY_ATTEMPTS_TRY_LATER : ..." の形式。
func classifyError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// HTTPレスポンスを受け取れなかった（接続失敗、タイムアウト）
		return fmt.Errorf("%w: %w", model.ErrNetwork, err)
	}

	switch providerCode(apiErr) {
	case "TOKEN_EXPIRED", "INVALID_ID_TOKEN", "USER_NOT_FOUND", "USER_DISABLED", "CREDENTIAL_TOO_OLD_LOGIN_AGAIN":
		return fmt.Errorf("%w: %w", model.ErrSessionExpired, err)
	case "TOO_MANY_ATTEMPTS_TRY_LATER", "QUOTA_EXCEEDED":
		return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
	case "EMAIL_EXISTS":
		return fmt.Errorf("%w: %w", model.ErrEmailExists, err)
	case "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "INVALID_LOGIN_CREDENTIALS":
		return fmt.Errorf("%w: %w", model.ErrInvalidCredentials, err)
	case "INVALID_EMAIL", "MISSING_PASSWORD", "WEAK_PASSWORD", "MISSING_EMAIL":
		return fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
	case apiErr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", model.ErrNetwork, err)
	}

	return err
}

// providerCode はエラーメッセージ先頭のエラーコードを取り出す。
func providerCode(apiErr *googleapi.Error) string {
	msg := apiErr.Message
	if msg == "" && len(apiErr.Errors) > 0 {
		msg = apiErr.Errors[0].Message
	}
	code, _, _ := strings.Cut(msg, " ")
	return strings.TrimSpace(code)
}
