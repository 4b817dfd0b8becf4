// Package identity は外部認証プロバイダー（Firebase Authentication）との連携を提供する。
// アカウント作成、サインイン、確認状態の再取得、確認メール送信を扱う。
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/clkk/internal/model"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// requestTypeVerifyEmail は確認メール送信のリクエスト種別。
const requestTypeVerifyEmail = "VERIFY_EMAIL"

// FirebaseConfig はFirebase Authenticationクライアントの設定。
type FirebaseConfig struct {
	APIKey string
	// Endpoint はAPIのベースURLを上書きする（エミュレーターやテスト用）。空の場合は既定値。
	Endpoint string
}

// FirebaseProvider はIdentity Toolkit REST APIを使う認証プロバイダー。
type FirebaseProvider struct {
	svc *identitytoolkit.Service
}

// NewFirebaseProvider はFirebaseProviderを生成する。
func NewFirebaseProvider(ctx context.Context, cfg FirebaseConfig) (*FirebaseProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("firebase API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity toolkit client: %w", err)
	}

	return &FirebaseProvider{svc: svc}, nil
}

// SignUp はメールアドレスとパスワードでアカウントを作成し、未確認のセッションを返す。
func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := p.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", classifyError(err))
	}

	slog.Info("account created",
		slog.String("user_id", resp.LocalId),
	)

	return &model.Session{
		UserID:        resp.LocalId,
		Email:         resp.Email,
		EmailVerified: false,
		IDToken:       resp.IdToken,
	}, nil
}

// SignIn はメールアドレスとパスワードでサインインし、確認状態を含むセッションを返す。
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := p.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", classifyError(err))
	}

	// パスワード検証のレスポンスには確認状態が含まれないため、取得し直す
	return p.Reload(ctx, &model.Session{
		UserID:  resp.LocalId,
		Email:   resp.Email,
		IDToken: resp.IdToken,
	})
}

// Reload はプロバイダーから最新のアカウント情報を取得し、新しいセッションを返す。
// 引数のセッションは変更しない。何度呼んでも安全。
func (p *FirebaseProvider) Reload(ctx context.Context, session *model.Session) (*model.Session, error) {
	resp, err := p.svc.Relyingparty.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		IdToken: session.IDToken,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to reload account: %w", classifyError(err))
	}
	if len(resp.Users) == 0 {
		return nil, fmt.Errorf("account %s no longer exists: %w", session.UserID, model.ErrSessionExpired)
	}

	u := resp.Users[0]
	fresh := *session
	fresh.UserID = u.LocalId
	fresh.Email = u.Email
	fresh.EmailVerified = u.EmailVerified
	return &fresh, nil
}

// SendVerificationEmail はセッションのメールアドレス宛てに確認メールを送信させる。
func (p *FirebaseProvider) SendVerificationEmail(ctx context.Context, session *model.Session) error {
	_, err := p.svc.Relyingparty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: requestTypeVerifyEmail,
		IdToken:     session.IDToken,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to send verification email: %w", classifyError(err))
	}

	slog.Info("verification email requested",
		slog.String("user_id", session.UserID),
	)
	return nil
}
