package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/clkk/internal/model"
)

var fixedNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newTestIssuer(secret string) *TokenIssuer {
	i := NewTokenIssuer(secret, time.Hour)
	i.now = func() time.Time { return fixedNow }
	return i
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := newTestIssuer("test-secret")
	session := &model.Session{
		UserID:    "u1",
		Email:     "a@x.com",
		IDToken:   "provider-token",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}

	token, err := issuer.Issue(session)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if *got != *session {
		t.Errorf("Parse() = %+v, want %+v", got, session)
	}
}

func TestTokenIssuer_Parse_Expired(t *testing.T) {
	issuer := newTestIssuer("test-secret")
	token, err := issuer.Issue(&model.Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	issuer.now = func() time.Time { return fixedNow.Add(2 * time.Hour) }
	_, err = issuer.Parse(token)
	if !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("err = %v, want ErrInvalidSessionToken", err)
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("err = %v, want wrapped ErrTokenExpired", err)
	}
}

func TestTokenIssuer_Parse_WrongSecret(t *testing.T) {
	token, err := newTestIssuer("secret-a").Issue(&model.Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = newTestIssuer("secret-b").Parse(token)
	if !errors.Is(err, ErrInvalidSessionToken) {
		t.Errorf("err = %v, want ErrInvalidSessionToken", err)
	}
}

func TestTokenIssuer_Parse_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
		},
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}

	_, err = newTestIssuer("test-secret").Parse(unsigned)
	if !errors.Is(err, ErrInvalidSessionToken) {
		t.Errorf("err = %v, want ErrInvalidSessionToken", err)
	}
}

func TestTokenIssuer_Parse_Garbage(t *testing.T) {
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := newTestIssuer("test-secret").Parse(tok); !errors.Is(err, ErrInvalidSessionToken) {
			t.Errorf("Parse(%q) err = %v, want ErrInvalidSessionToken", tok, err)
		}
	}
}

func TestTokenIssuer_UniqueTokenIDs(t *testing.T) {
	issuer := newTestIssuer("test-secret")
	a, _ := issuer.Issue(&model.Session{UserID: "u1"})
	b, _ := issuer.Issue(&model.Session{UserID: "u1"})
	if a == b {
		t.Error("tokens issued at the same instant should differ by jti")
	}
}
