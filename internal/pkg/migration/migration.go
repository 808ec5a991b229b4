// Package migration applies the embedded Postgres schema with goose.
package migration

import (
	"context"
	"embed"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var files embed.FS

// ErrMigrate wraps any failure while applying migrations.
var ErrMigrate = errors.New("migration: failed to apply schema")

var upContext = func(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return goose.UpContext(ctx, db, "sql")
}

// Up applies every pending migration against pool.
func Up(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(files)
	if err := goose.SetDialect("pgx"); err != nil {
		return errors.Join(ErrMigrate, err)
	}
	goose.SetLogger(goose.NopLogger())

	if err := upContext(ctx, pool); err != nil {
		return errors.Join(ErrMigrate, err)
	}

	return nil
}
