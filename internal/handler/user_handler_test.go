package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/hitoshi/clkk/internal/middleware"
	"github.com/hitoshi/clkk/internal/model"
)

func TestMe_ReturnsStoredProfile(t *testing.T) {
	f := newFixture(t)
	if err := f.profiles.CreateUserProfile(context.Background(), "u1", "ada@example.com", "Ada", "Lovelace"); err != nil {
		t.Fatalf("CreateUserProfile: %v", err)
	}

	w := f.do(http.MethodGet, "/api/users/me", "", f.sessionCookie(pendingSession()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody[userProfileResponse](t, w)
	if resp.UID != "u1" || resp.FirstName != "Ada" || resp.LastName != "Lovelace" || resp.Email != "ada@example.com" {
		t.Errorf("profile = %+v", resp)
	}
	if resp.CreatedAt.IsZero() {
		t.Error("createdAt should be set")
	}
}

func TestMe_NotRegistered_Returns404(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/users/me", "", f.sessionCookie(pendingSession()))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body := decodeBody[middleware.ErrorResponseBody](t, w); body.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q", body.Code)
	}
}
