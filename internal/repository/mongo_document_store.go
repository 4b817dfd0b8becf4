package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/clkk/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoUnauthorizedCode はMongoDBのUnauthorizedエラーコード。
const mongoUnauthorizedCode = 13

// MongoDocumentStore はMongoDBをドキュメントストアとして使う実装。
// ドキュメントコレクションはそのままMongoのコレクションに対応し、キーは_idに格納する。
type MongoDocumentStore struct {
	db  *mongo.Database
	now func() time.Time
}

// NewMongoDocumentStore はMongoDocumentStoreを生成する。
func NewMongoDocumentStore(db *mongo.Database) *MongoDocumentStore {
	return &MongoDocumentStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Write はReplaceOne（upsert）でドキュメントを全体上書きする。
func (s *MongoDocumentStore) Write(ctx context.Context, collection, key string, record Record) error {
	doc := bson.M{"_id": key}
	for k, v := range resolveTimestamps(record, s.now()) {
		doc[k] = v
	}

	_, err := s.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": key},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, key, classifyMongoError(err))
	}

	return nil
}

// Read はドキュメントを取得する。見つからない場合はnilを返す。
func (s *MongoDocumentStore) Read(ctx context.Context, collection, key string) (Record, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s/%s: %w", collection, key, classifyMongoError(err))
	}

	record := make(Record, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		if dt, ok := v.(bson.DateTime); ok {
			record[k] = dt.Time().UTC()
			continue
		}
		record[k] = v
	}

	return record, nil
}

// classifyMongoError はMongoDBドライバのエラーをドメインのエラー分類に対応付ける。
func classifyMongoError(err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %w", model.ErrNetwork, err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(mongoUnauthorizedCode) {
		return fmt.Errorf("%w: %w", model.ErrPermissionDenied, err)
	}

	return err
}

// compile-time interface check
var _ DocumentStore = (*MongoDocumentStore)(nil)
