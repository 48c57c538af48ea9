package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fit-portal/placement/modules/internship/domain/assignment"
)

type AssignmentRepository struct {
	store *Store
}

const assignmentColumns = `id, student_id, period_id, staff_id, assigned_at, replaced_at`

func scanAssignment(row pgx.Row) (assignment.Assignment, error) {
	var a assignment.Assignment
	var replaced pgtype.Timestamptz
	if err := row.Scan(&a.ID, &a.StudentID, &a.PeriodID, &a.StaffID, &a.AssignedAt, &replaced); err != nil {
		return assignment.Assignment{}, err
	}
	a.ReplacedAt = asTimePtr(replaced)
	return a, nil
}

func (r *AssignmentRepository) live(ctx context.Context, studentID, periodID uuid.UUID, lock bool) (assignment.Assignment, bool, error) {
	q := `SELECT ` + assignmentColumns + `
FROM internship_assignments
WHERE student_id = $1 AND period_id = $2 AND replaced_at IS NULL`
	if lock {
		q += ` FOR UPDATE`
	}
	a, err := scanAssignment(r.store.querier(ctx).QueryRow(ctx, q, pgUUID(studentID), pgUUID(periodID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return assignment.Assignment{}, false, nil
	}
	if err != nil {
		return assignment.Assignment{}, false, errors.Wrap(err, "get live assignment")
	}
	return a, true, nil
}

func (r *AssignmentRepository) Live(ctx context.Context, studentID, periodID uuid.UUID) (assignment.Assignment, bool, error) {
	return r.live(ctx, studentID, periodID, false)
}

func (r *AssignmentRepository) LockLive(ctx context.Context, studentID, periodID uuid.UUID) (assignment.Assignment, bool, error) {
	return r.live(ctx, studentID, periodID, true)
}

func (r *AssignmentRepository) History(ctx context.Context, studentID, periodID uuid.UUID) ([]assignment.Assignment, error) {
	rows, err := r.store.querier(ctx).Query(ctx, `
SELECT `+assignmentColumns+`
FROM internship_assignments
WHERE student_id = $1 AND period_id = $2
ORDER BY assigned_at, id
`, pgUUID(studentID), pgUUID(periodID))
	if err != nil {
		return nil, errors.Wrap(err, "list assignments")
	}
	defer rows.Close()

	out := make([]assignment.Assignment, 0, 2)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan assignment")
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "list assignments")
	}
	return out, nil
}

func (r *AssignmentRepository) MarkReplaced(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.store.querier(ctx).Exec(ctx,
		`UPDATE internship_assignments SET replaced_at = $2 WHERE id = $1 AND replaced_at IS NULL`,
		pgUUID(id), at)
	if err != nil {
		return errors.Wrap(err, "mark assignment replaced")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(pgx.ErrNoRows, "mark assignment replaced")
	}
	return nil
}

func (r *AssignmentRepository) Insert(ctx context.Context, a assignment.Assignment) error {
	_, err := r.store.querier(ctx).Exec(ctx, `
INSERT INTO internship_assignments (id, student_id, period_id, staff_id, assigned_at, replaced_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, pgUUID(a.ID), pgUUID(a.StudentID), pgUUID(a.PeriodID), pgUUID(a.StaffID), a.AssignedAt, pgTime(a.ReplacedAt))
	if err != nil {
		return errors.Wrap(err, "insert assignment")
	}
	return nil
}
