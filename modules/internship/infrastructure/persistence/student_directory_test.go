package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/student"
)

func newMockDirectory(t *testing.T, table string) (*StudentDirectory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir, err := NewStudentDirectory(sqlx.NewDb(db, "postgres"), table)
	require.NoError(t, err)
	return dir, mock
}

func TestStudentDirectoryLookup(t *testing.T) {
	dir, mock := newMockDirectory(t, "records.students")
	known, unknown := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, full_name, gpa, email FROM "records"."students" WHERE id = ANY($1::uuid[])`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "gpa", "email"}).
			AddRow(known.String(), "Ana Lima", "3.85", "ana@example.edu"))

	got, err := dir.Lookup(context.Background(), []uuid.UUID{known, unknown})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Ana Lima", got[known].FullName)
	require.True(t, got[known].GPA.Equal(decimal.RequireFromString("3.85")))
	_, ok := got[unknown]
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentDirectoryEmptyLookupSkipsQuery(t *testing.T) {
	dir, mock := newMockDirectory(t, "student_records")

	got, err := dir.Lookup(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentDirectoryQueryError(t *testing.T) {
	dir, mock := newMockDirectory(t, "student_records")
	mock.ExpectQuery("SELECT id, full_name").WillReturnError(context.DeadlineExceeded)

	_, err := dir.Lookup(context.Background(), []uuid.UUID{uuid.New()})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuoteTable(t *testing.T) {
	q, err := quoteTable("student_records")
	require.NoError(t, err)
	require.Equal(t, `"student_records"`, q)

	_, err = quoteTable("")
	require.Error(t, err)
	_, err = quoteTable("public.")
	require.Error(t, err)
}

func TestStudentDirectoryUpsert(t *testing.T) {
	dir, mock := newMockDirectory(t, "student_records")
	st := student.Student{ID: uuid.New(), FullName: "Ana Lima", GPA: decimal.RequireFromString("3.85"), Email: "ana@example.edu"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "student_records" (id, full_name, gpa, email) VALUES ($1, $2, $3, $4)`)).
		WithArgs(sqlmock.AnyArg(), "Ana Lima", sqlmock.AnyArg(), "ana@example.edu").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, dir.Upsert(context.Background(), st))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentDirectoryUpsertRollsBackOnError(t *testing.T) {
	dir, mock := newMockDirectory(t, "student_records")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(context.Canceled)
	mock.ExpectRollback()

	err := dir.Upsert(context.Background(), student.Student{ID: uuid.New(), FullName: "Bo"})
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mock.ExpectationsWereMet())
}
