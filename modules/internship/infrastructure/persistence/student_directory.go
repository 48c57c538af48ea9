package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fit-portal/placement/modules/internship/domain/student"
)

// StudentDirectory reads the student-records collaborator through
// database/sql so it can live in a different database than the engine.
type StudentDirectory struct {
	db     *sqlx.DB
	query  string
	upsert string
}

// OpenStudentDirectory connects with lib/pq. table may be schema-qualified.
func OpenStudentDirectory(dsn, table string) (*StudentDirectory, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open student records")
	}
	return NewStudentDirectory(db, table)
}

func NewStudentDirectory(db *sqlx.DB, table string) (*StudentDirectory, error) {
	ident, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	return &StudentDirectory{
		db:     db,
		query:  fmt.Sprintf(`SELECT id, full_name, gpa, email FROM %s WHERE id = ANY($1::uuid[])`, ident),
		upsert: fmt.Sprintf(`INSERT INTO %s (id, full_name, gpa, email) VALUES (:id, :full_name, :gpa, :email)
ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, gpa = EXCLUDED.gpa, email = EXCLUDED.email`, ident),
	}, nil
}

func (d *StudentDirectory) Close() error { return d.db.Close() }

func (d *StudentDirectory) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]student.Student, error) {
	out := make(map[uuid.UUID]student.Student, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	var rows []student.Student
	if err := d.db.SelectContext(ctx, &rows, d.query, pq.Array(keys)); err != nil {
		return nil, errors.Wrap(err, "lookup students")
	}
	for _, st := range rows {
		out[st.ID] = st
	}
	return out, nil
}

// Upsert writes student records in one transaction. Only the seed command
// calls it; the engine itself never writes student records.
func (d *StudentDirectory) Upsert(ctx context.Context, students ...student.Student) error {
	if len(students) == 0 {
		return nil
	}
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin student upsert")
	}
	defer func() { _ = tx.Rollback() }()
	for _, st := range students {
		if _, err := tx.NamedExecContext(ctx, d.upsert, st); err != nil {
			return errors.Wrapf(err, "upsert student %s", st.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit student upsert")
}

func quoteTable(table string) (string, error) {
	if table == "" {
		return "", errors.New("student records table is required")
	}
	parts := strings.Split(strings.TrimSpace(table), ".")
	for i, p := range parts {
		if p == "" {
			return "", errors.Errorf("invalid table name %q", table)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}
