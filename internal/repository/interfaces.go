// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"time"
)

// Record はドキュメントストアに保存する1件のドキュメント。
// キーはフィールド名、値はJSON/BSON/Firestoreで表現可能な値。
type Record map[string]any

// serverTimestamp は書き込み時刻で置き換えるセンチネルの型。
type serverTimestamp struct{}

// ServerTimestamp はストアが書き込み時点の時刻に解決するセンチネル値。
// Firestoreではサーバー時刻、その他のバックエンドではストアの時計で置き換える。
var ServerTimestamp = serverTimestamp{}

// DocumentStore はコレクションとキーで識別されるドキュメントの永続化インターフェース。
// 書き込みはマージせず全体を上書きする（last-writer-wins）。
// 同じキーに同じレコードを繰り返し書き込んでも結果は変わらない。
type DocumentStore interface {
	// Write は指定コレクション・キーのドキュメントを全体上書きで保存する。
	// 失敗時はmodel.ErrPermissionDeniedまたはmodel.ErrNetworkをラップして返す。
	Write(ctx context.Context, collection, key string, record Record) error

	// Read は指定コレクション・キーのドキュメントを取得する。見つからない場合はnilを返す。
	Read(ctx context.Context, collection, key string) (Record, error)
}

// resolveTimestamps はServerTimestampセンチネルをnowで置き換えたコピーを返す。
func resolveTimestamps(record Record, now time.Time) Record {
	out := make(Record, len(record))
	for k, v := range record {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}
