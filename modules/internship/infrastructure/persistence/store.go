// Package persistence is the Postgres store of the internship module. Every
// repository joins the transaction bound to the context by the Transactor and
// falls back to the pool for standalone reads.
package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/composables"
	"github.com/fit-portal/placement/pkg/outbox"
	"github.com/fit-portal/placement/pkg/repo"
)

// CommitHook observes the events of a unit of work after it committed.
type CommitHook func(ctx context.Context, evs []events.PlacementEventV1)

type Store struct {
	pool     *pgxpool.Pool
	events   *EventRecorder
	students services.StudentDirectory
	onCommit CommitHook
}

type pendingKey struct{}

// pendingEvents collects the events recorded by one top-level transaction.
type pendingEvents struct {
	events []events.PlacementEventV1
}

// NewStore wires the pgx repositories. Events are enqueued in outboxTable;
// students is the student-records adapter (see NewStudentDirectory).
func NewStore(pool *pgxpool.Pool, outboxTable pgx.Identifier, students services.StudentDirectory) *Store {
	s := &Store{pool: pool, students: students}
	s.events = &EventRecorder{store: s, publisher: outbox.NewPublisher(outboxTable)}
	return s
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Repositories() services.Repositories {
	return services.Repositories{
		Tx:          s,
		Periods:     &PeriodRepository{store: s},
		Capacity:    &CapacityRepository{store: s},
		Assignments: &AssignmentRepository{store: s},
		Preferences: &PreferenceRepository{store: s},
		Decisions:   &DecisionRepository{store: s},
		Events:      s.events,
		Students:    s.students,
	}
}

// OnCommit installs hook for in-process subscribers that must not wait for
// the outbox relay. Call it before the store serves traffic.
func (s *Store) OnCommit(hook CommitHook) {
	s.onCommit = hook
}

// InTx opens a transaction unless ctx already carries one.
func (s *Store) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if composables.HasTx(ctx) {
		return fn(ctx)
	}
	c := &pendingEvents{}
	ctx = context.WithValue(ctx, pendingKey{}, c)
	if err := composables.InTx(composables.WithPool(ctx, s.pool), fn); err != nil {
		return err
	}
	s.committed(ctx, c.events)
	return nil
}

// InSnapshot runs read-only work at repeatable read so every statement sees
// the same snapshot.
func (s *Store) InSnapshot(ctx context.Context, fn func(txCtx context.Context) error) error {
	if composables.HasTx(ctx) {
		return fn(ctx)
	}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return composables.InTxWithOptions(composables.WithPool(ctx, s.pool), opts, fn)
}

func (s *Store) committed(ctx context.Context, evs []events.PlacementEventV1) {
	if s.onCommit == nil || len(evs) == 0 {
		return
	}
	s.onCommit(ctx, evs)
}

func (s *Store) querier(ctx context.Context) repo.Tx {
	if composables.HasTx(ctx) {
		if tx, err := composables.UseTx(ctx); err == nil {
			return tx
		}
	}
	return s.pool
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgUUID(*id)
}

func asUUIDPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func pgTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func asTimePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
