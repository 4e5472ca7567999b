// Package credstore keeps the access and refresh tokens between runs.
//
// Stores know nothing about token semantics: values are opaque strings under
// fixed keys (models.KeyAccessToken, models.KeyRefreshToken). Every Set is an
// atomic replacement of one key, so readers never observe partial writes.
package credstore

import (
	"context"
	"fmt"

	"github.com/nkiryanov/skyauth/internal/apperrors"
)

const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindRedis    = "redis"
	KindPostgres = "postgres"
)

const defaultNamespace = "default"

type Store interface {
	// Get value by key
	// ok is false if key is absent; absence is not an error
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set replaces the value under the key
	Set(ctx context.Context, key string, value string) error

	// Delete keys, missing keys are ignored
	Delete(ctx context.Context, keys ...string) error

	// Release underlying resources (connections, pools)
	Close() error
}

type Config struct {
	// One of Kind* constants
	Kind string

	// File store location
	Path string

	// Redis connection url: redis://:pass@host:6379/0
	RedisURL string

	// Postgres connection string: postgres://...
	DatabaseDSN string

	// Namespace separates credentials of different profiles in shared backends (redis, postgres)
	Namespace string
}

// Open creates store for configured kind
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = defaultNamespace
	}

	switch cfg.Kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindFile:
		return NewFile(cfg.Path)
	case KindRedis:
		return NewRedis(ctx, cfg.RedisURL, cfg.Namespace)
	case KindPostgres:
		return OpenPostgres(ctx, cfg.DatabaseDSN, cfg.Namespace)
	default:
		return nil, fmt.Errorf("store %q: %w", cfg.Kind, apperrors.ErrUnknownStore)
	}
}
