package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fit-portal/placement/modules/internship/domain/period"
)

type PeriodRepository struct {
	store *Store
}

const periodColumns = `id, name, label, opens_at, closes_at, status, created_at, updated_at`

func scanPeriod(row pgx.Row) (period.Period, error) {
	var p period.Period
	if err := row.Scan(&p.ID, &p.Name, &p.Label, &p.OpensAt, &p.ClosesAt, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return period.Period{}, err
	}
	p.OpensAt, p.ClosesAt = p.OpensAt.UTC(), p.ClosesAt.UTC()
	return p, nil
}

func (r *PeriodRepository) Create(ctx context.Context, p period.Period) error {
	_, err := r.store.querier(ctx).Exec(ctx, `
INSERT INTO internship_periods (id, name, label, opens_at, closes_at, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, pgUUID(p.ID), p.Name, p.Label, p.OpensAt, p.ClosesAt, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert period")
	}
	return nil
}

func (r *PeriodRepository) Get(ctx context.Context, id uuid.UUID) (period.Period, bool, error) {
	p, err := scanPeriod(r.store.querier(ctx).QueryRow(ctx,
		`SELECT `+periodColumns+` FROM internship_periods WHERE id = $1`, pgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return period.Period{}, false, nil
	}
	if err != nil {
		return period.Period{}, false, errors.Wrap(err, "get period")
	}
	return p, true, nil
}

func (r *PeriodRepository) List(ctx context.Context) ([]period.Period, error) {
	rows, err := r.store.querier(ctx).Query(ctx,
		`SELECT `+periodColumns+` FROM internship_periods ORDER BY opens_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list periods")
	}
	defer rows.Close()

	out := make([]period.Period, 0, 8)
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan period")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "list periods")
	}
	return out, nil
}

func (r *PeriodRepository) SetStatus(ctx context.Context, id uuid.UUID, status period.Status, at time.Time) error {
	tag, err := r.store.querier(ctx).Exec(ctx,
		`UPDATE internship_periods SET status = $2, updated_at = $3 WHERE id = $1`,
		pgUUID(id), string(status), at)
	if err != nil {
		return errors.Wrap(err, "set period status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(pgx.ErrNoRows, "set period status")
	}
	return nil
}
