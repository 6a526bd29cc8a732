package issuance

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoDatabase = "cnw_nodelock"

// Open connects to the registry named by a URL. The scheme selects the
// backend: "memory:", "postgres://" or "postgresql://", "mongodb://" or
// "mongodb+srv://" (the path names the database) and "redis://" or
// "rediss://". The returned registry owns its connection; Close releases it.
func Open(ctx context.Context, rawURL string) (Registry, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse registry url: %w", err)
	}
	switch u.Scheme {
	case "memory":
		return NewMemoryRegistry(), nil
	case "postgres", "postgresql":
		pool, err := pgxpool.New(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		r, err := NewPostgresRegistry(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		r.owned = true
		return r, nil
	case "mongodb", "mongodb+srv":
		client, err := mongo.Connect(options.Client().ApplyURI(rawURL))
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		dbName := strings.Trim(u.Path, "/")
		if dbName == "" {
			dbName = defaultMongoDatabase
		}
		r, err := NewMongoRegistry(ctx, client.Database(dbName))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		r.client = client
		return r, nil
	case "redis", "rediss":
		opt, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opt)
		r, err := NewRedisRegistry(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		r.owned = true
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported registry scheme %q", u.Scheme)
	}
}
