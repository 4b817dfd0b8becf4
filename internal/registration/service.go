// Package registration は登録完了時のドキュメント書き込みを提供する。
// プロフィール（users）とウェイトリスト（waitinglist）の2つのドキュメントを
// ユーザーIDをキーとして全体上書きで書き込むため、何度再実行しても安全。
package registration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/clkk/internal/model"
	"github.com/hitoshi/clkk/internal/repository"
)

const errMsgIDAndEmailRequired = "User ID and email are required"

// Config は登録サービスの設定。
type Config struct {
	// MarkProfileVerified がtrueの場合、プロフィールのemailVerifiedをtrueで書き込む。
	// 登録は確認済みのセッションでのみ行われるため、falseのままにするのは互換目的。
	MarkProfileVerified bool
}

// Service は登録ドキュメントの読み書きを提供する。
type Service struct {
	store  repository.DocumentStore
	config Config
}

// NewService はServiceを生成する。
func NewService(store repository.DocumentStore, config Config) *Service {
	return &Service{
		store:  store,
		config: config,
	}
}

// Register はプロフィール、ウェイトリストの順に書き込む。
// プロフィールの書き込みに失敗した場合、ウェイトリストは書き込まない。
// 途中で失敗してもロールバックはしない（再実行で上書きされる）。
func (s *Service) Register(ctx context.Context, session *model.Session) error {
	if err := s.CreateUserProfile(ctx, session.UserID, session.Email, session.FirstName, session.LastName); err != nil {
		return err
	}
	return s.AddToWaitlist(ctx, session.UserID, session.Email)
}

// CreateUserProfile はusers/{userID}にプロフィールを書き込む。
// createdAtとupdatedAtは書き込み時刻になる。
func (s *Service) CreateUserProfile(ctx context.Context, userID, email, firstName, lastName string) error {
	if userID == "" || email == "" {
		return model.NewInputError(errMsgIDAndEmailRequired)
	}

	record := repository.Record{
		"email":         email,
		"firstName":     firstName,
		"lastName":      lastName,
		"uid":           userID,
		"createdAt":     repository.ServerTimestamp,
		"updatedAt":     repository.ServerTimestamp,
		"emailVerified": s.config.MarkProfileVerified,
	}

	if err := s.store.Write(ctx, model.CollectionUsers, userID, record); err != nil {
		slog.Error("error creating user document",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user profile: %w", err)
	}

	return nil
}

// AddToWaitlist はwaitinglist/{userID}にステータスverifiedのエントリを書き込む。
func (s *Service) AddToWaitlist(ctx context.Context, userID, email string) error {
	if userID == "" || email == "" {
		return model.NewInputError(errMsgIDAndEmailRequired)
	}

	record := repository.Record{
		"email":      email,
		"uid":        userID,
		"verifiedAt": repository.ServerTimestamp,
		"status":     model.WaitlistStatusVerified,
	}

	if err := s.store.Write(ctx, model.CollectionWaitlist, userID, record); err != nil {
		slog.Error("error adding to waitlist",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to add to waitlist: %w", err)
	}

	return nil
}

// GetUserProfile はusers/{userID}のプロフィールを取得する。見つからない場合はnilを返す。
func (s *Service) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	rec, err := s.store.Read(ctx, model.CollectionUsers, userID)
	if err != nil {
		slog.Error("error fetching user data",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	return &model.UserProfile{
		UID:           stringField(rec, "uid"),
		Email:         stringField(rec, "email"),
		FirstName:     stringField(rec, "firstName"),
		LastName:      stringField(rec, "lastName"),
		CreatedAt:     timeField(rec, "createdAt"),
		UpdatedAt:     timeField(rec, "updatedAt"),
		EmailVerified: boolField(rec, "emailVerified"),
	}, nil
}

func stringField(rec repository.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}

func boolField(rec repository.Record, key string) bool {
	b, _ := rec[key].(bool)
	return b
}

// timeField はバックエンドごとに異なるタイムスタンプ表現（time.TimeまたはRFC3339文字列）を読む。
func timeField(rec repository.Record, key string) time.Time {
	switch v := rec[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}
