package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/clkk/internal/middleware"
	"github.com/hitoshi/clkk/internal/model"
)

// UserHandler はプロフィール取得のHTTPハンドラー。
type UserHandler struct {
	profiles ProfileReader
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(profiles ProfileReader) *UserHandler {
	return &UserHandler{
		profiles: profiles,
	}
}

type userProfileResponse struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	EmailVerified bool      `json:"emailVerified"`
}

// Me は登録済みのプロフィールを返す。登録前は404。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	profile, err := h.profiles.GetUserProfile(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err, "Failed to load your profile.")
		return
	}
	if profile == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, userProfileResponse{
		UID:           profile.UID,
		Email:         profile.Email,
		FirstName:     profile.FirstName,
		LastName:      profile.LastName,
		CreatedAt:     profile.CreatedAt,
		UpdatedAt:     profile.UpdatedAt,
		EmailVerified: profile.EmailVerified,
	})
}
