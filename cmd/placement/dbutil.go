package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/fit-portal/placement/modules/internship/infrastructure/persistence"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/configuration"
	"github.com/fit-portal/placement/pkg/outbox"
)

// env bundles the connections a command needs. Events raised by CLI writes
// land in the outbox and are delivered by the server's relay.
type env struct {
	pool     *pgxpool.Pool
	students *persistence.StudentDirectory
	repos    services.Repositories
}

func (e *env) Close() {
	if e.students != nil {
		_ = e.students.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, configuration.Use().Database.Opts)
	if err != nil {
		return nil, errors.Wrap(err, "db connect failed")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "db ping failed")
	}
	return pool, nil
}

func openEnv(ctx context.Context) (*env, error) {
	conf := configuration.Use()
	table, err := outbox.ParseIdentifier(conf.Outbox.RelayTable)
	if err != nil {
		return nil, errors.Wrap(err, "invalid OUTBOX_RELAY_TABLE")
	}
	pool, err := connectDB(ctx)
	if err != nil {
		return nil, err
	}
	dsn := conf.StudentRecords.DSN
	if dsn == "" {
		dsn = conf.Database.Opts
	}
	students, err := persistence.OpenStudentDirectory(dsn, conf.StudentRecords.Table)
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "open student records")
	}
	store := persistence.NewStore(pool, table, students)
	return &env{pool: pool, students: students, repos: store.Repositories()}, nil
}
