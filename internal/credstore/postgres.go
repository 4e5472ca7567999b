package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/db"
)

// DBTX is satisfied by pgxpool.Pool, pgx.Conn and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres store keeps values in 'credentials' table
type Postgres struct {
	DB        DBTX
	Namespace string

	pool *pgxpool.Pool
}

// OpenPostgres connects, applies migrations and returns store owning the pool
func OpenPostgres(ctx context.Context, dsn string, namespace string) (*Postgres, error) {
	pool, err := db.ConnectAndMigrate(ctx, dsn)
	if err != nil {
		return nil, err
	}

	return &Postgres{DB: pool, Namespace: namespace, pool: pool}, nil
}

const getCredential = `-- name: GetCredential
SELECT value FROM credentials
WHERE namespace = $1 AND key = $2
`

func (s *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	rows, _ := s.DB.Query(ctx, getCredential, s.Namespace, key)
	value, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	default:
		return "", false, dbError(err)
	}
}

const setCredential = `-- name: SetCredential
INSERT INTO credentials (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`

func (s *Postgres) Set(ctx context.Context, key string, value string) error {
	_, err := s.DB.Exec(ctx, setCredential, s.Namespace, key, value)
	if err != nil {
		return dbError(err)
	}
	return nil
}

const deleteCredentials = `-- name: DeleteCredentials
DELETE FROM credentials
WHERE namespace = $1 AND key = ANY($2)
`

func (s *Postgres) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := s.DB.Exec(ctx, deleteCredentials, s.Namespace, keys)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func dbError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("db error: %w", apperrors.ErrStoreNotMigrated)
	}
	return fmt.Errorf("db error: %w", err)
}
