package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hitoshi/clkk/internal/config"
	"github.com/hitoshi/clkk/internal/database"
	"github.com/hitoshi/clkk/internal/repository"
)

// closeFunc はバックエンドの接続を解放する。
type closeFunc func(ctx context.Context) error

func noopClose(context.Context) error { return nil }

// openStore はSTORE_DRIVERに応じたドキュメントストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (repository.DocumentStore, closeFunc, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return repository.NewPostgresDocumentStore(db), func(context.Context) error {
			return db.Close()
		}, nil

	case config.StoreDriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
		}
		slog.Info("mongo connection established",
			slog.String("database", cfg.MongoDatabase),
		)
		return repository.NewMongoDocumentStore(client.Database(cfg.MongoDatabase)), client.Disconnect, nil

	case config.StoreDriverFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirebaseProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		slog.Info("firestore client created",
			slog.String("project_id", cfg.FirebaseProjectID),
		)
		return repository.NewFirestoreDocumentStore(client), func(context.Context) error {
			return client.Close()
		}, nil

	case config.StoreDriverMemory:
		slog.Warn("in-memory store is enabled; data will be lost on restart")
		return repository.NewMemoryDocumentStore(time.Now), noopClose, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
