// Package model はドメインモデルを定義する。
package model

import "time"

// ドキュメントストアのコレクション名
const (
	CollectionUsers    = "users"
	CollectionWaitlist = "waitinglist"
)

// WaitlistStatusVerified はウェイトリスト登録時に書き込む唯一のステータス。
const WaitlistStatusVerified = "verified"

// Session は確認待ちの認証済みアイデンティティを表す。
// 認証プロバイダーが所有し、リコンサイラは参照のみ保持する。
// EmailVerifiedはReload直後の値のみ信頼できる。
type Session struct {
	UserID        string
	Email         string
	EmailVerified bool

	// IDToken はプロバイダーの認証情報。Reloadと再送で使用する。
	IDToken string

	// サインアップフォームから引き継ぐ氏名
	FirstName string
	LastName  string
}

// UserProfile はusersコレクションのプロフィールドキュメント。
// 登録完了時に1回だけ作成され、このサブシステムからは削除されない。
type UserProfile struct {
	UID           string
	Email         string
	FirstName     string
	LastName      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	EmailVerified bool
}
