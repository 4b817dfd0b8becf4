package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/clkk/internal/middleware"
	"github.com/hitoshi/clkk/internal/model"
	"github.com/hitoshi/clkk/internal/verification"
)

// VerificationHandler は確認待ち画面のHTTPハンドラー。
// 画面はGETをポーリングして状態を取得し、redirectが返れば遷移する。
type VerificationHandler struct {
	manager  ReconcilerManager
	profiles ProfileReader
	issuer   SessionIssuer
	cookie   middleware.SessionCookieConfig
}

// NewVerificationHandler はVerificationHandlerを生成する。
func NewVerificationHandler(manager ReconcilerManager, profiles ProfileReader, issuer SessionIssuer, cookie middleware.SessionCookieConfig) *VerificationHandler {
	return &VerificationHandler{
		manager:  manager,
		profiles: profiles,
		issuer:   issuer,
		cookie:   cookie,
	}
}

// verificationResponse は確認待ち画面に返す状態。
type verificationResponse struct {
	State       string     `json:"state"`
	Email       string     `json:"email"`
	Message     string     `json:"message,omitempty"`
	Redirect    string     `json:"redirect,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func toVerificationResponse(snap verification.Snapshot) verificationResponse {
	resp := verificationResponse{
		State:    snap.State.String(),
		Email:    snap.Email,
		Message:  snap.Message,
		Redirect: snap.Redirect,
	}
	if !snap.UpdatedAt.IsZero() {
		resp.UpdatedAt = &snap.UpdatedAt
	}
	if !snap.CompletedAt.IsZero() {
		resp.CompletedAt = &snap.CompletedAt
	}
	return resp
}

// GetStatus はリコンサイラの現在の状態を返す。
// リコンサイラがなければ開始する。プロフィールが保存済みの場合のみ、開始せずに完了を返す。
// GET /api/verification
func (h *VerificationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	rec := h.manager.Get(session.UserID)
	if rec == nil {
		// 確認済みでも登録が終わっていなければリコンサイラに書き込ませる
		if session.EmailVerified && profileExists(r.Context(), h.profiles, session.UserID) {
			writeJSON(w, http.StatusOK, verificationResponse{
				State:    verification.StateDone.String(),
				Email:    session.Email,
				Redirect: model.RedirectDashboard,
			})
			return
		}
		rec = h.manager.Open(session)
	}
	rec.Touch()

	snap := rec.Snapshot()
	if snap.State == verification.StateDone && !session.EmailVerified {
		// 完了後はCookieを確認済みに更新し、リコンサイラ破棄後に再登録が走らないようにする
		if fresh := rec.Session(); fresh != nil {
			h.refreshCookie(w, fresh)
		}
	}

	writeJSON(w, http.StatusOK, toVerificationResponse(snap))
}

// Resend は確認メールを再送する。
// POST /api/verification/resend
func (h *VerificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	rec := h.manager.Get(session.UserID)
	if rec == nil {
		rec = h.manager.Open(session)
	}
	rec.Touch()

	if err := rec.ResendVerificationEmail(r.Context()); err != nil {
		middleware.WriteError(w, err, model.MessageResendFailed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": model.MessageResendSucceeded,
	})
}

// Close は確認待ち画面が閉じられたときにリコンサイラを破棄する。
// DELETE /api/verification
func (h *VerificationHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	h.manager.Close(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *VerificationHandler) refreshCookie(w http.ResponseWriter, session *model.Session) {
	token, err := h.issuer.Issue(session)
	if err != nil {
		slog.Warn("failed to refresh session token",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return
	}
	middleware.SetSessionCookie(w, token, h.cookie)
}
