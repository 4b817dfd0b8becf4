package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/hitoshi/clkk/internal/verification"
)

// Tracker はサインアップファネルのイベントを分析イベントとして送信する。
// リコンサイラのリスナーとしても動作する。
type Tracker struct {
	client Client
	logger *slog.Logger
}

// NewTracker はTrackerを生成する。
func NewTracker(client Client, logger *slog.Logger) *Tracker {
	return &Tracker{
		client: client,
		logger: logger,
	}
}

// HandleEvent はverification.Listenerを実装する。
func (t *Tracker) HandleEvent(e verification.Event) {
	switch e.Type {
	case verification.EventCompleted:
		t.track(context.Background(), e.UserID, EventEmailVerified, nil)
	case verification.EventVerificationEmailSent:
		t.track(context.Background(), e.UserID, EventEmailVerificationSent, nil)
	}
}

// SignUpStarted はサインアップ開始を送信する。
// ユーザーIDが未確定のため、メールアドレスのハッシュを識別子に使う。
func (t *Tracker) SignUpStarted(ctx context.Context, email string) {
	t.track(ctx, anonymousID(email), EventSignUpStart, nil)
}

// anonymousID は正規化したメールアドレスのSHA-256を返す。
func anonymousID(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "anon_" + hex.EncodeToString(sum[:])
}

// SignUpCompleted はアカウント作成完了を送信する。
func (t *Tracker) SignUpCompleted(ctx context.Context, userID string) {
	t.track(ctx, userID, EventSignUpComplete, nil)
}

// LoginSucceeded はサインイン成功を送信する。
func (t *Tracker) LoginSucceeded(ctx context.Context, userID string, emailVerified bool) {
	t.track(ctx, userID, EventLoginSuccess, map[string]any{
		"email_verified": emailVerified,
	})
}

func (t *Tracker) track(ctx context.Context, distinctID, name string, props map[string]any) {
	if t == nil || t.client == nil {
		return
	}
	err := t.client.Send(ctx, Event{
		DistinctID: distinctID,
		Name:       name,
		Properties: props,
	})
	if err != nil {
		t.logger.Warn("analytics error",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
	}
}
