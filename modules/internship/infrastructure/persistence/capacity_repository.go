package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
)

type CapacityRepository struct {
	store *Store
}

const accountColumns = `period_id, subject_kind, subject_id, max_slots, used_slots, accepting, created_at, updated_at`

func scanAccount(row pgx.Row) (capacity.Account, error) {
	var a capacity.Account
	if err := row.Scan(&a.PeriodID, &a.Kind, &a.SubjectID, &a.MaxSlots, &a.UsedSlots, &a.Accepting, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return capacity.Account{}, err
	}
	return a, nil
}

// one runs a single-row statement and reports false when no row matched.
func (r *CapacityRepository) one(ctx context.Context, op, query string, args ...any) (capacity.Account, bool, error) {
	a, err := scanAccount(r.store.querier(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return capacity.Account{}, false, nil
	}
	if err != nil {
		return capacity.Account{}, false, errors.Wrap(err, op)
	}
	return a, true, nil
}

func keyArgs(key capacity.Key) []any {
	return []any{pgUUID(key.PeriodID), string(key.Kind), pgUUID(key.SubjectID)}
}

func (r *CapacityRepository) Create(ctx context.Context, acc capacity.Account) error {
	_, err := r.store.querier(ctx).Exec(ctx, `
INSERT INTO internship_capacity_accounts (period_id, subject_kind, subject_id, max_slots, used_slots, accepting, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, pgUUID(acc.PeriodID), string(acc.Kind), pgUUID(acc.SubjectID), acc.MaxSlots, acc.UsedSlots, acc.Accepting, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert capacity account")
	}
	return nil
}

func (r *CapacityRepository) Get(ctx context.Context, key capacity.Key) (capacity.Account, bool, error) {
	return r.one(ctx, "get capacity account", `
SELECT `+accountColumns+`
FROM internship_capacity_accounts
WHERE period_id = $1 AND subject_kind = $2 AND subject_id = $3
`, keyArgs(key)...)
}

func (r *CapacityRepository) List(ctx context.Context, periodID uuid.UUID, kind *capacity.SubjectKind) ([]capacity.Account, error) {
	var kindArg *string
	if kind != nil {
		k := string(*kind)
		kindArg = &k
	}
	rows, err := r.store.querier(ctx).Query(ctx, `
SELECT `+accountColumns+`
FROM internship_capacity_accounts
WHERE period_id = $1 AND ($2::text IS NULL OR subject_kind = $2)
ORDER BY subject_kind, subject_id
`, pgUUID(periodID), kindArg)
	if err != nil {
		return nil, errors.Wrap(err, "list capacity accounts")
	}
	defer rows.Close()

	out := make([]capacity.Account, 0, 16)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan capacity account")
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "list capacity accounts")
	}
	return out, nil
}

// TryAdmit is the only path that increments used_slots. The guard and the
// increment are one statement, so two admits for the last slot serialize on
// the row and the second sees the updated count.
func (r *CapacityRepository) TryAdmit(ctx context.Context, key capacity.Key, at time.Time) (capacity.Account, bool, error) {
	return r.one(ctx, "admit", `
UPDATE internship_capacity_accounts
SET used_slots = used_slots + 1, updated_at = $4
WHERE period_id = $1 AND subject_kind = $2 AND subject_id = $3
	AND accepting
	AND used_slots < max_slots
RETURNING `+accountColumns, append(keyArgs(key), at)...)
}

func (r *CapacityRepository) Release(ctx context.Context, key capacity.Key, at time.Time) (capacity.Account, bool, error) {
	return r.one(ctx, "release", `
UPDATE internship_capacity_accounts
SET used_slots = GREATEST(used_slots - 1, 0), updated_at = $4
WHERE period_id = $1 AND subject_kind = $2 AND subject_id = $3
RETURNING `+accountColumns, append(keyArgs(key), at)...)
}

func (r *CapacityRepository) Resize(ctx context.Context, key capacity.Key, maxSlots int, at time.Time) (capacity.Account, bool, error) {
	return r.one(ctx, "resize", `
UPDATE internship_capacity_accounts
SET max_slots = $4, updated_at = $5
WHERE period_id = $1 AND subject_kind = $2 AND subject_id = $3
	AND used_slots <= $4
RETURNING `+accountColumns, append(keyArgs(key), maxSlots, at)...)
}

func (r *CapacityRepository) SetAccepting(ctx context.Context, key capacity.Key, accepting bool, at time.Time) (capacity.Account, bool, error) {
	return r.one(ctx, "set accepting", `
UPDATE internship_capacity_accounts
SET accepting = $4, updated_at = $5
WHERE period_id = $1 AND subject_kind = $2 AND subject_id = $3
RETURNING `+accountColumns, append(keyArgs(key), accepting, at)...)
}
