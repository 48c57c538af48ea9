package persistence

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/go-faster/errors"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrator applies the embedded goose migrations.
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
}

func NewMigrator(dsn string) (*Migrator, error) {
	schema, err := fs.Sub(schemaFS, "schema")
	if err != nil {
		return nil, errors.Wrap(err, "schema fs")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, schema)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init migrations")
	}
	return &Migrator{db: db, provider: provider}, nil
}

func (m *Migrator) Close() error { return m.db.Close() }

func (m *Migrator) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	res, err := m.provider.Up(ctx)
	if err != nil {
		return res, errors.Wrap(err, "migrate up")
	}
	return res, nil
}

// Down rolls back the latest migration.
func (m *Migrator) Down(ctx context.Context) (*goose.MigrationResult, error) {
	res, err := m.provider.Down(ctx)
	if err != nil {
		return res, errors.Wrap(err, "migrate down")
	}
	return res, nil
}

func (m *Migrator) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	st, err := m.provider.Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "migration status")
	}
	return st, nil
}

// Reset rolls every migration back; used by integration tests.
func (m *Migrator) Reset(ctx context.Context) error {
	_, err := m.provider.DownTo(ctx, 0)
	if err != nil {
		return errors.Wrap(err, "migrate reset")
	}
	return nil
}
