package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"
)

// Backend names accepted by Open.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Open connects the named history backend. The returned close function
// releases the underlying connection and is never nil. BackendNone yields a
// nil store.
//
// dsn is interpreted per backend: a file path or ":memory:" for SQLite, a
// postgres:// URL for Postgres, a redis:// URL for Redis and a mongodb://
// URI for Mongo.
func Open(ctx context.Context, backend, dsn string) (EventStore, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case BackendNone:
		return nil, noop, nil

	case "", BackendMemory:
		return NewInMemoryEventStore(), noop, nil

	case BackendSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite: %w", err)
		}
		// A single connection keeps ":memory:" databases shared.
		db.SetMaxOpenConns(1)
		store, err := NewSQLiteEventStore(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("init sqlite schema: %w", err)
		}
		return store, db.Close, nil

	case BackendPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("ping postgres: %w", err)
		}
		store, err := NewPostgresEventStore(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("init postgres schema: %w", err)
		}
		return store, db.Close, nil

	case BackendRedis:
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisEventStore(client, ""), client.Close, nil

	case BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
		if err != nil {
			return nil, noop, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() error { return client.Disconnect(context.Background()) }
		store := NewMongoEventStore(client, "", "")
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = disconnect()
			return nil, noop, fmt.Errorf("create mongo indexes: %w", err)
		}
		return store, disconnect, nil
	}

	return nil, noop, fmt.Errorf("%w: %q", ErrUnsupportedBackend, backend)
}
