// Package auth はサインアップ・サインインとセッショントークンの発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/clkk/internal/model"
	"github.com/hitoshi/clkk/internal/security"
)

// IdentityProvider は外部認証プロバイダーのインターフェース。
type IdentityProvider interface {
	// SignUp はアカウントを作成し、未確認のセッションを返す。
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	// SignIn はサインインし、確認状態を含むセッションを返す。
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
}

// FunnelTracker はサインアップファネルの分析イベントを送信する。
type FunnelTracker interface {
	SignUpStarted(ctx context.Context, email string)
	SignUpCompleted(ctx context.Context, userID string)
	LoginSucceeded(ctx context.Context, userID string, emailVerified bool)
}

// SignUpInput はサインアップの入力値。
type SignUpInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider  IdentityProvider
	sanitizer security.TextSanitizerService
	tracker   FunnelTracker
}

// NewService はServiceを生成する。
func NewService(provider IdentityProvider, sanitizer security.TextSanitizerService, tracker FunnelTracker) *Service {
	return &Service{
		provider:  provider,
		sanitizer: sanitizer,
		tracker:   tracker,
	}
}

// SignUp はアカウントを作成し、氏名を付与した確認待ちセッションを返す。
// 氏名はプレーンテキストに無害化してからセッションに載せる。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*model.Session, error) {
	s.tracker.SignUpStarted(ctx, in.Email)

	session, err := s.provider.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	session.FirstName = s.sanitizer.SanitizeName(in.FirstName)
	session.LastName = s.sanitizer.SanitizeName(in.LastName)

	s.tracker.SignUpCompleted(ctx, session.UserID)
	slog.Info("new user signed up",
		slog.String("user_id", session.UserID),
	)
	return session, nil
}

// Login はサインインしてセッションを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	s.tracker.LoginSucceeded(ctx, session.UserID, session.EmailVerified)
	slog.Info("user logged in",
		slog.String("user_id", session.UserID),
		slog.Bool("email_verified", session.EmailVerified),
	)
	return session, nil
}
