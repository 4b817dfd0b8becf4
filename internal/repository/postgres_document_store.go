package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hitoshi/clkk/internal/model"
	"github.com/lib/pq"
)

// PostgresDocumentStore はPostgreSQLのdocumentsテーブルをドキュメントストアとして使う実装。
// (collection, doc_key) を主キーとし、dataはJSONBで保持する。
type PostgresDocumentStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresDocumentStore はPostgresDocumentStoreを生成する。
func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Write はドキュメントをUPSERTで全体上書きする。
func (s *PostgresDocumentStore) Write(ctx context.Context, collection, key string, record Record) error {
	now := s.now()
	data, err := json.Marshal(resolveTimestamps(record, now))
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, doc_key, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, doc_key)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		collection, key, data, now,
	)
	if err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, key, classifyPostgresError(err))
	}

	return nil
}

// Read はドキュメントを取得する。見つからない場合はnilを返す。
// タイムスタンプはRFC3339形式の文字列として返る。
func (s *PostgresDocumentStore) Read(ctx context.Context, collection, key string) (Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_key = $2`,
		collection, key,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s/%s: %w", collection, key, classifyPostgresError(err))
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}

	return record, nil
}

// classifyPostgresError はPostgreSQLのエラーをドメインのエラー分類に対応付ける。
// 42501 (insufficient_privilege) は書き込み拒否、08xx (connection exception) と
// ネットワーク層のエラーは到達不能として扱う。
func classifyPostgresError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "42501":
			return fmt.Errorf("%w: %s", model.ErrPermissionDenied, pqErr.Message)
		case pqErr.Code.Class() == "08":
			return fmt.Errorf("%w: %s", model.ErrNetwork, pqErr.Message)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", model.ErrNetwork, err)
	}

	return err
}

// compile-time interface check
var _ DocumentStore = (*PostgresDocumentStore)(nil)
