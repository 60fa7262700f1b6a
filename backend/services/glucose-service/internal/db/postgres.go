package db

import (
	"context"
	"database/sql"

	libdb "glucoseapi/backend/libs/db"
	"glucoseapi/backend/services/glucose-service/internal/config"
)

// NewPostgres connects to Postgres using shared library helper.
func NewPostgres(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return libdb.NewPostgresDB(ctx, cfg.DSN(), libdb.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
}
