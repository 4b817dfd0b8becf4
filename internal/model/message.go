package model

import "errors"

// ユーザー向けの既定メッセージ
const (
	MessageRegistrationFailed = "Failed to complete registration. Please try again."
	MessageResendFailed       = "Failed to send verification email."
	MessageResendSucceeded    = "Verification email sent! Please check your inbox."
)

// InputError は利用者に表示可能な説明を持つ入力エラー。
// errors.Is(err, ErrInvalidInput) が成立する。
type InputError struct {
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *InputError) Error() string {
	return e.Message
}

// Unwrap はErrInvalidInputを返す。
func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// NewInputError はInputErrorを生成する。
func NewInputError(message string) error {
	return &InputError{Message: message}
}

// UserMessage はエラーをトースト表示用の1文に変換する。
// 分類できないエラーはfallbackを返す。内部エラーの詳細は利用者に見せない。
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return inputErr.Message
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Please wait before trying again."
	case errors.Is(err, ErrNetwork):
		return "We couldn't reach the server. Retrying shortly."
	case errors.Is(err, ErrPermissionDenied):
		return "We couldn't save your registration. Retrying shortly."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrEmailExists):
		return "An account with this email already exists."
	case errors.Is(err, ErrNotPending):
		return "Your email verification is no longer pending."
	case errors.Is(err, ErrInvalidInput):
		return "Some of the information you entered is invalid."
	}

	return fallback
}
