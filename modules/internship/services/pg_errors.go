package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fail(ErrNotFound, "", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fail(ErrInternal, "", err)
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		switch pgErr.ConstraintName {
		case "internship_capacity_accounts_pkey":
			return fail(ErrAlreadyEnrolled, "", err)
		case "internship_preference_batches_pkey",
			"internship_preferences_rank_key",
			"internship_preferences_org_key":
			return fail(ErrDuplicateSubmission, "", err)
		case "internship_assignments_live_key":
			return fail(ErrConflict, "concurrent assignment change", err)
		default:
			return fail(ErrInternal, "unique constraint violated", err)
		}
	case "23514": // check_violation
		recordWriteConflict("check")
		switch {
		case strings.HasSuffix(pgErr.ConstraintName, "_used_within_max"):
			return fail(ErrCapacityExceeded, "", err)
		case strings.HasSuffix(pgErr.ConstraintName, "_window"):
			return fail(ErrInvalidWindow, "", err)
		case strings.HasSuffix(pgErr.ConstraintName, "_rank_range"):
			return fail(ErrInvalidRankSequence, "", err)
		default:
			return fail(ErrInvalidBody, "check constraint violated", err)
		}
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return fail(ErrNotFound, "referenced row not found", err)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return fail(ErrConflict, "", err)
	default:
		return fail(ErrInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
