package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/clkk/internal/model"
)

// ErrInvalidSessionToken はセッショントークンが不正または期限切れであることを表す。
var ErrInvalidSessionToken = errors.New("invalid session token")

const tokenIssuer = "clkk"

// SessionClaims はセッションCookieに格納するクレーム。
// サブジェクトがユーザーID。
type SessionClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	IDToken       string `json:"id_token"`
}

// TokenIssuer はセッションをHS256署名のJWTとして発行・検証する。
type TokenIssuer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, maxAge time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Issue はセッションを署名済みトークンに変換する。
func (i *TokenIssuer) Issue(session *model.Session) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   session.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.maxAge)),
		},
		Email:         session.Email,
		EmailVerified: session.EmailVerified,
		FirstName:     session.FirstName,
		LastName:      session.LastName,
		IDToken:       session.IDToken,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証してセッションを復元する。
// 署名不一致、期限切れ、形式不正の場合はErrInvalidSessionTokenを返す。
func (i *TokenIssuer) Parse(tokenString string) (*model.Session, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSessionToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidSessionToken
	}

	return &model.Session{
		UserID:        claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		IDToken:       claims.IDToken,
		FirstName:     claims.FirstName,
		LastName:      claims.LastName,
	}, nil
}

// MaxAge はトークンの有効期間を返す。
func (i *TokenIssuer) MaxAge() time.Duration {
	return i.maxAge
}
