// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 外部コラボレーター（認証プロバイダー、ドキュメントストア）由来のエラー分類。
// 各実装は固有のエラーをこれらのいずれかで%wラップして返す。
var (
	// ErrNetwork はストアまたはプロバイダーに到達できないことを表す。
	ErrNetwork = errors.New("network error")
	// ErrPermissionDenied はストアへの書き込みが拒否されたことを表す。
	ErrPermissionDenied = errors.New("permission denied")
	// ErrSessionExpired はセッションが無効になり再認証が必要なことを表す。
	ErrSessionExpired = errors.New("session expired")
	// ErrRateLimited は確認メール再送がプロバイダーまたはローカルで抑制されたことを表す。
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput は入力値の検証エラーを表す。
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotPending はリコンサイラが既に終端状態にあり操作を受け付けないことを表す。
	ErrNotPending = errors.New("verification is not pending")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが誤っていることを表す。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailExists は同じメールアドレスのアカウントが既に存在することを表す。
	ErrEmailExists = errors.New("email already exists")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, registration, system
	Action   string // ユーザー向け対処方法
	Redirect string // 遷移先（再認証が必要な場合など）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeNetwork            = "NETWORK_ERROR"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailExists        = "EMAIL_EXISTS"
	ErrCodeNotPending         = "NOT_PENDING"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// 画面遷移先
const (
	RedirectSignup    = "/signup"
	RedirectLogin     = "/login"
	RedirectDashboard = "/dashboard"
)

// NewUnauthorizedError はセッション未確立エラーを生成する。
// 確認待ち画面はセッションがない場合サインアップ画面へ戻る。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You need to sign up before verifying your email.",
		Category: "auth",
		Action:   "Create an account to continue.",
		Redirect: RedirectSignup,
	}
}

// NewUserNotFoundError はプロフィールが未作成の場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Your profile has not been created yet.",
		Category: "registration",
		Action:   "Verify your email to complete registration.",
	}
}

// NewValidationError はフィールド検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Category: "validation",
		Action:   "Check the highlighted fields and try again.",
	}
}

// ToAPIError はエラー分類をAPIErrorに変換する。
// fallbackはエラー分類に該当しない場合にユーザーへ表示するメッセージ。
func ToAPIError(err error, fallback string) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		return &APIError{
			Code:     ErrCodeSessionExpired,
			Message:  UserMessage(err, fallback),
			Category: "auth",
			Action:   "Sign in again to continue.",
			Redirect: RedirectLogin,
		}
	case errors.Is(err, ErrRateLimited):
		return &APIError{
			Code:     ErrCodeRateLimited,
			Message:  UserMessage(err, fallback),
			Category: "system",
			Action:   "Wait a few minutes before requesting another email.",
		}
	case errors.Is(err, ErrNetwork):
		return &APIError{
			Code:     ErrCodeNetwork,
			Message:  UserMessage(err, fallback),
			Category: "system",
			Action:   "Check your connection and try again.",
		}
	case errors.Is(err, ErrPermissionDenied):
		return &APIError{
			Code:     ErrCodePermissionDenied,
			Message:  UserMessage(err, fallback),
			Category: "registration",
			Action:   "Contact support if the problem persists.",
		}
	case errors.Is(err, ErrInvalidCredentials):
		return &APIError{
			Code:     ErrCodeInvalidCredentials,
			Message:  UserMessage(err, fallback),
			Category: "auth",
			Action:   "Check your email and password.",
		}
	case errors.Is(err, ErrEmailExists):
		return &APIError{
			Code:     ErrCodeEmailExists,
			Message:  UserMessage(err, fallback),
			Category: "auth",
			Action:   "Sign in with your existing account.",
			Redirect: RedirectLogin,
		}
	case errors.Is(err, ErrInvalidInput):
		return NewValidationError(UserMessage(err, fallback))
	case errors.Is(err, ErrNotPending):
		return &APIError{
			Code:     ErrCodeNotPending,
			Message:  UserMessage(err, fallback),
			Category: "registration",
			Action:   "Reload the page.",
		}
	}

	return &APIError{
		Code:     ErrCodeInternal,
		Message:  fallback,
		Category: "system",
		Action:   "Please try again later.",
	}
}
