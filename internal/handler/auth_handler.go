// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/clkk/internal/auth"
	"github.com/hitoshi/clkk/internal/middleware"
	"github.com/hitoshi/clkk/internal/model"
	"github.com/hitoshi/clkk/internal/verification"
)

// 確認待ち画面のパス
const redirectVerifyEmail = "/verify-email"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*model.Session, error)
	Login(ctx context.Context, email, password string) (*model.Session, error)
}

// SessionIssuer はセッションを署名付きトークンに変換する。auth.TokenIssuerが実装する。
type SessionIssuer interface {
	Issue(session *model.Session) (string, error)
}

// ReconcilerManager はユーザーごとのリコンサイラを管理する。verification.Managerが実装する。
type ReconcilerManager interface {
	Open(session *model.Session) *verification.Reconciler
	Get(userID string) *verification.Reconciler
	Close(userID string) bool
}

// ProfileReader は保存済みのプロフィールを取得する。registration.Serviceが実装する。
type ProfileReader interface {
	GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error)
}

// AuthHandler はサインアップ・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	issuer    SessionIssuer
	manager   ReconcilerManager
	profiles  ProfileReader
	cookie    middleware.SessionCookieConfig
	validator *requestValidator
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	service AuthServiceInterface,
	issuer SessionIssuer,
	manager ReconcilerManager,
	profiles ProfileReader,
	cookie middleware.SessionCookieConfig,
) *AuthHandler {
	return &AuthHandler{
		service:   service,
		issuer:    issuer,
		manager:   manager,
		profiles:  profiles,
		cookie:    cookie,
		validator: newRequestValidator(),
	}
}

type signUpRequest struct {
	Email     string `json:"email" label:"Email" validate:"required,max=254"`
	Password  string `json:"password" label:"Password" validate:"required,min=6,max=128"`
	FirstName string `json:"firstName" label:"First name" validate:"required,max=50"`
	LastName  string `json:"lastName" label:"Last name" validate:"required,max=50"`
}

type loginRequest struct {
	Email    string `json:"email" label:"Email" validate:"required,max=254"`
	Password string `json:"password" label:"Password" validate:"required,max=128"`
}

// authResponse はサインアップ・ログイン後の遷移先を返す。
type authResponse struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	Redirect      string `json:"redirect"`
}

// SignUp はアカウントを作成し、最初の確認メールを送信して確認待ち状態を開始する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, err, "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		middleware.WriteError(w, err, "")
		return
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		middleware.WriteError(w, err, "")
		return
	}

	session, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Email:     email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		slog.Warn("signup failed", slog.String("error", err.Error()))
		middleware.WriteError(w, err, "Failed to create your account. Please try again.")
		return
	}

	if !h.setSessionCookie(w, session) {
		return
	}

	rec := h.manager.Open(session)
	// 初回の確認メール送信に失敗しても、確認待ち画面から再送できるためサインアップは成功とする
	if err := rec.ResendVerificationEmail(r.Context()); err != nil {
		slog.Warn("failed to send initial verification email",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusCreated, authResponse{
		UserID:   session.UserID,
		Email:    session.Email,
		Redirect: redirectVerifyEmail,
	})
}

// Login はセッション期限切れ後の再認証を行う。
// 確認済みかつ登録済みならダッシュボード、それ以外は確認待ち画面へ遷移させる。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, err, "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		middleware.WriteError(w, err, "")
		return
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		middleware.WriteError(w, err, "")
		return
	}

	session, err := h.service.Login(r.Context(), email, req.Password)
	if err != nil {
		middleware.WriteError(w, err, "Failed to sign in. Please try again.")
		return
	}

	// プロバイダーは氏名を保持しないため、同じユーザーの既存セッションから引き継ぐ
	if prev, err := middleware.SessionFromContext(r.Context()); err == nil && prev.UserID == session.UserID {
		session.FirstName = prev.FirstName
		session.LastName = prev.LastName
	}

	redirect := redirectVerifyEmail
	if session.EmailVerified && profileExists(r.Context(), h.profiles, session.UserID) {
		redirect = model.RedirectDashboard
	}

	if !h.setSessionCookie(w, session) {
		return
	}
	if redirect == redirectVerifyEmail {
		// 登録未完了なら確認済みでもリコンサイラに登録させる
		h.manager.Close(session.UserID)
		h.manager.Open(session)
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID:        session.UserID,
		Email:         session.Email,
		EmailVerified: session.EmailVerified,
		Redirect:      redirect,
	})
}

// Logout はリコンサイラを破棄してセッションCookieを削除する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session, err := middleware.SessionFromContext(r.Context()); err == nil {
		h.manager.Close(session.UserID)
	}
	middleware.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

// profileExists はプロフィールが保存済みかどうかを返す。読み取りに失敗した場合は未登録とみなす。
func profileExists(ctx context.Context, profiles ProfileReader, userID string) bool {
	profile, err := profiles.GetUserProfile(ctx, userID)
	return err == nil && profile != nil
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) bool {
	token, err := h.issuer.Issue(session)
	if err != nil {
		slog.Error("failed to issue session token",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return false
	}
	middleware.SetSessionCookie(w, token, h.cookie)
	return true
}
