package repository

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryDocumentStore はプロセス内メモリに保持するドキュメントストア。
// ローカル開発（STORE_DRIVER=memory）とテストで使用する。
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Record
	now  func() time.Time
}

// NewMemoryDocumentStore はMemoryDocumentStoreを生成する。
// nowがnilの場合はtime.Now().UTCを使う。
func NewMemoryDocumentStore(now func() time.Time) *MemoryDocumentStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryDocumentStore{
		docs: make(map[string]map[string]Record),
		now:  now,
	}
}

// Write はドキュメントを全体上書きする。
func (s *MemoryDocumentStore) Write(ctx context.Context, collection, key string, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved := resolveTimestamps(record, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.docs[collection]
	if !ok {
		c = make(map[string]Record)
		s.docs[collection] = c
	}
	c[key] = resolved
	return nil
}

// Read はドキュメントのコピーを返す。見つからない場合はnilを返す。
func (s *MemoryDocumentStore) Read(ctx context.Context, collection, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[collection][key]
	if !ok {
		return nil, nil
	}
	return maps.Clone(rec), nil
}

// Len は指定コレクションのドキュメント数を返す。テスト用。
func (s *MemoryDocumentStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}

// compile-time interface check
var _ DocumentStore = (*MemoryDocumentStore)(nil)
