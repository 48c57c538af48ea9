package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fit-portal/placement/modules/internship/domain/preference"
)

type PreferenceRepository struct {
	store *Store
}

const (
	batchColumns      = `student_id, period_id, submitted_at, note, outcome, placed_organization_id, decided_at, decided_by`
	preferenceColumns = `id, student_id, period_id, rank, organization_id, status, note, created_at, decided_at, decided_by`
)

func scanBatch(row pgx.Row) (preference.Batch, error) {
	var (
		b                 preference.Batch
		placed, decidedBy pgtype.UUID
		decidedAt         pgtype.Timestamptz
	)
	if err := row.Scan(&b.StudentID, &b.PeriodID, &b.SubmittedAt, &b.Note, &b.Outcome, &placed, &decidedAt, &decidedBy); err != nil {
		return preference.Batch{}, err
	}
	b.SubmittedAt = b.SubmittedAt.UTC()
	b.PlacedOrganizationID = asUUIDPtr(placed)
	b.DecidedAt = asTimePtr(decidedAt)
	b.DecidedBy = asUUIDPtr(decidedBy)
	return b, nil
}

func scanPreference(row pgx.Row) (preference.Preference, error) {
	var (
		p         preference.Preference
		decidedBy pgtype.UUID
		decidedAt pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.StudentID, &p.PeriodID, &p.Rank, &p.OrganizationID, &p.Status, &p.Note, &p.CreatedAt, &decidedAt, &decidedBy); err != nil {
		return preference.Preference{}, err
	}
	p.DecidedAt = asTimePtr(decidedAt)
	p.DecidedBy = asUUIDPtr(decidedBy)
	return p, nil
}

func (r *PreferenceRepository) InsertBatch(ctx context.Context, b preference.Batch, prefs []preference.Preference) error {
	q := r.store.querier(ctx)
	if _, err := q.Exec(ctx, `
INSERT INTO internship_preference_batches (student_id, period_id, submitted_at, note, outcome)
VALUES ($1, $2, $3, $4, $5)
`, pgUUID(b.StudentID), pgUUID(b.PeriodID), b.SubmittedAt, b.Note, string(b.Outcome)); err != nil {
		return errors.Wrap(err, "insert preference batch")
	}

	for _, p := range prefs {
		if _, err := q.Exec(ctx, `
INSERT INTO internship_preferences (id, student_id, period_id, rank, organization_id, status, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, pgUUID(p.ID), pgUUID(p.StudentID), pgUUID(p.PeriodID), p.Rank, pgUUID(p.OrganizationID), string(p.Status), p.Note, p.CreatedAt); err != nil {
			return errors.Wrapf(err, "insert preference rank %d", p.Rank)
		}
	}
	return nil
}

func (r *PreferenceRepository) batch(ctx context.Context, studentID, periodID uuid.UUID, lock bool) (preference.Batch, bool, error) {
	q := `SELECT ` + batchColumns + `
FROM internship_preference_batches
WHERE student_id = $1 AND period_id = $2`
	if lock {
		q += ` FOR UPDATE`
	}
	b, err := scanBatch(r.store.querier(ctx).QueryRow(ctx, q, pgUUID(studentID), pgUUID(periodID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return preference.Batch{}, false, nil
	}
	if err != nil {
		return preference.Batch{}, false, errors.Wrap(err, "get preference batch")
	}
	return b, true, nil
}

func (r *PreferenceRepository) GetBatch(ctx context.Context, studentID, periodID uuid.UUID) (preference.Batch, bool, error) {
	return r.batch(ctx, studentID, periodID, false)
}

func (r *PreferenceRepository) LockBatch(ctx context.Context, studentID, periodID uuid.UUID) (preference.Batch, bool, error) {
	return r.batch(ctx, studentID, periodID, true)
}

func (r *PreferenceRepository) UpdateOutcome(ctx context.Context, b preference.Batch) error {
	tag, err := r.store.querier(ctx).Exec(ctx, `
UPDATE internship_preference_batches
SET outcome = $3, placed_organization_id = $4, decided_at = $5, decided_by = $6
WHERE student_id = $1 AND period_id = $2
`, pgUUID(b.StudentID), pgUUID(b.PeriodID), string(b.Outcome), pgUUIDPtr(b.PlacedOrganizationID), pgTime(b.DecidedAt), pgUUIDPtr(b.DecidedBy))
	if err != nil {
		return errors.Wrap(err, "update outcome")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(pgx.ErrNoRows, "update outcome")
	}
	return nil
}

func (r *PreferenceRepository) ListBatches(ctx context.Context, periodID uuid.UUID) ([]preference.Batch, error) {
	rows, err := r.store.querier(ctx).Query(ctx, `
SELECT `+batchColumns+`
FROM internship_preference_batches
WHERE period_id = $1
ORDER BY submitted_at, student_id
`, pgUUID(periodID))
	if err != nil {
		return nil, errors.Wrap(err, "list preference batches")
	}
	defer rows.Close()

	out := make([]preference.Batch, 0, 64)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan preference batch")
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "list preference batches")
	}
	return out, nil
}

func (r *PreferenceRepository) Get(ctx context.Context, id uuid.UUID) (preference.Preference, bool, error) {
	p, err := scanPreference(r.store.querier(ctx).QueryRow(ctx,
		`SELECT `+preferenceColumns+` FROM internship_preferences WHERE id = $1`, pgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return preference.Preference{}, false, nil
	}
	if err != nil {
		return preference.Preference{}, false, errors.Wrap(err, "get preference")
	}
	return p, true, nil
}

func (r *PreferenceRepository) list(ctx context.Context, op, query string, args ...any) ([]preference.Preference, error) {
	rows, err := r.store.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer rows.Close()

	out := make([]preference.Preference, 0, 8)
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan preference")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), op)
	}
	return out, nil
}

func (r *PreferenceRepository) ListFor(ctx context.Context, studentID, periodID uuid.UUID) ([]preference.Preference, error) {
	return r.list(ctx, "list preferences", `
SELECT `+preferenceColumns+`
FROM internship_preferences
WHERE student_id = $1 AND period_id = $2
ORDER BY rank
`, pgUUID(studentID), pgUUID(periodID))
}

func (r *PreferenceRepository) ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]preference.Preference, error) {
	return r.list(ctx, "list period preferences", `
SELECT `+preferenceColumns+`
FROM internship_preferences
WHERE period_id = $1
ORDER BY student_id, rank
`, pgUUID(periodID))
}

func (r *PreferenceRepository) Transition(ctx context.Context, id uuid.UUID, from, to preference.Status, at time.Time, by uuid.UUID) (bool, error) {
	tag, err := r.store.querier(ctx).Exec(ctx, `
UPDATE internship_preferences
SET status = $3, decided_at = $4, decided_by = $5
WHERE id = $1 AND status = $2
`, pgUUID(id), string(from), string(to), at, pgUUID(by))
	if err != nil {
		return false, errors.Wrap(err, "transition preference")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PreferenceRepository) RejectPending(ctx context.Context, studentID, periodID, keep uuid.UUID, at time.Time, by uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.store.querier(ctx).Query(ctx, `
WITH rejected AS (
	UPDATE internship_preferences
	SET status = 'rejected', decided_at = $4, decided_by = $5
	WHERE student_id = $1 AND period_id = $2
		AND status = 'pending'
		AND id <> $3
	RETURNING id, rank
)
SELECT id FROM rejected ORDER BY rank
`, pgUUID(studentID), pgUUID(periodID), pgUUID(keep), at, pgUUID(by))
	if err != nil {
		return nil, errors.Wrap(err, "reject pending preferences")
	}
	defer rows.Close()

	out := make([]uuid.UUID, 0, 4)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan rejected preference")
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "reject pending preferences")
	}
	return out, nil
}
