package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fit-portal/placement/modules/internship/domain/decision"
)

type DecisionRepository struct {
	store *Store
}

func (r *DecisionRepository) Append(ctx context.Context, entries ...decision.Entry) error {
	q := r.store.querier(ctx)
	for _, e := range entries {
		if _, err := q.Exec(ctx, `
INSERT INTO internship_decisions (id, period_id, student_id, preference_id, kind, reviewer_id, reason, decided_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, pgUUID(e.ID), pgUUID(e.PeriodID), pgUUID(e.StudentID), pgUUIDPtr(e.PreferenceID), string(e.Kind), pgUUID(e.ReviewerID), e.Reason, e.DecidedAt); err != nil {
			return errors.Wrap(err, "append decision")
		}
	}
	return nil
}

func (r *DecisionRepository) List(ctx context.Context, studentID, periodID uuid.UUID) ([]decision.Entry, error) {
	rows, err := r.store.querier(ctx).Query(ctx, `
SELECT id, period_id, student_id, preference_id, kind, reviewer_id, reason, decided_at
FROM internship_decisions
WHERE student_id = $1 AND period_id = $2
ORDER BY seq
`, pgUUID(studentID), pgUUID(periodID))
	if err != nil {
		return nil, errors.Wrap(err, "list decisions")
	}
	defer rows.Close()

	out := make([]decision.Entry, 0, 4)
	for rows.Next() {
		var (
			e    decision.Entry
			pref pgtype.UUID
		)
		if err := rows.Scan(&e.ID, &e.PeriodID, &e.StudentID, &pref, &e.Kind, &e.ReviewerID, &e.Reason, &e.DecidedAt); err != nil {
			return nil, errors.Wrap(err, "scan decision")
		}
		e.PreferenceID = asUUIDPtr(pref)
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "list decisions")
	}
	return out, nil
}
