package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/hitoshi/clkk/internal/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreDocumentStore はCloud Firestoreをドキュメントストアとして使う実装。
// ServerTimestampはFirestoreのサーバー時刻センチネルに変換する。
type FirestoreDocumentStore struct {
	client *firestore.Client
}

// NewFirestoreDocumentStore はFirestoreDocumentStoreを生成する。
func NewFirestoreDocumentStore(client *firestore.Client) *FirestoreDocumentStore {
	return &FirestoreDocumentStore{client: client}
}

// Write はSetでドキュメントを全体上書きする（MergeAllは指定しない）。
func (s *FirestoreDocumentStore) Write(ctx context.Context, collection, key string, record Record) error {
	data := make(map[string]interface{}, len(record))
	for k, v := range record {
		if _, ok := v.(serverTimestamp); ok {
			data[k] = firestore.ServerTimestamp
			continue
		}
		data[k] = v
	}

	if _, err := s.client.Collection(collection).Doc(key).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, key, classifyGRPCError(err))
	}

	return nil
}

// Read はドキュメントを取得する。見つからない場合はnilを返す。
func (s *FirestoreDocumentStore) Read(ctx context.Context, collection, key string) (Record, error) {
	snap, err := s.client.Collection(collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s/%s: %w", collection, key, classifyGRPCError(err))
	}

	return Record(snap.Data()), nil
}

// classifyGRPCError はFirestoreのgRPCステータスをドメインのエラー分類に対応付ける。
func classifyGRPCError(err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %w", model.ErrPermissionDenied, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %w", model.ErrNetwork, err)
	}
	return err
}

// compile-time interface check
var _ DocumentStore = (*FirestoreDocumentStore)(nil)
