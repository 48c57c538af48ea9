package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/student"
	"github.com/fit-portal/placement/modules/internship/infrastructure/memory"
)

type memoryStudents struct{ store *memory.Store }

func (m memoryStudents) Upsert(_ context.Context, students ...student.Student) error {
	for _, st := range students {
		m.store.PutStudent(st)
	}
	return nil
}

func seedYAML(studentID, staffID, orgID uuid.UUID, opensAt, closesAt time.Time) string {
	return fmt.Sprintf(`
students:
  - id: %[1]s
    full_name: Ana Lima
    gpa: 3.85
    email: ana@example.edu
periods:
  - name: spring
    label: Spring term
    opens_at: %[4]s
    closes_at: %[5]s
    open: true
    capacity:
      - kind: staff
        subject_id: %[2]s
        max_slots: 3
      - kind: enterprise
        subject_id: %[3]s
        max_slots: 2
    assignments:
      - student_id: %[1]s
        staff_id: %[2]s
`, studentID, staffID, orgID, opensAt.Format(time.RFC3339), closesAt.Format(time.RFC3339))
}

func TestLoadAndApplySeed(t *testing.T) {
	studentID, staffID, orgID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()
	f, err := loadSeed(strings.NewReader(seedYAML(studentID, staffID, orgID, now.Add(-time.Hour), now.Add(24*time.Hour))))
	require.NoError(t, err)
	require.True(t, f.Students[0].GPA.Equal(decimal.RequireFromString("3.85")))

	store := memory.New(nil)
	svc := newSeedServices(store.Repositories())
	res, err := applySeed(context.Background(), svc, memoryStudents{store}, f)
	require.NoError(t, err)
	require.Equal(t, 1, res.Students)
	require.Equal(t, 2, res.Accounts)
	require.Equal(t, 1, res.Assignments)

	periodID := uuid.MustParse(res.Periods["spring"])
	open, err := svc.periods.IsOpen(context.Background(), periodID, svc.periods.Now())
	require.NoError(t, err)
	require.True(t, open)

	guide, err := svc.capacity.CurrentUsage(context.Background(), capacity.NewKey(periodID, capacity.KindStaff, staffID))
	require.NoError(t, err)
	require.Equal(t, 1, guide.UsedSlots)

	got, err := store.Lookup(context.Background(), []uuid.UUID{studentID})
	require.NoError(t, err)
	require.Equal(t, "Ana Lima", got[studentID].FullName)
}

func TestLoadSeedRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"unknown field": "periods:\n  - name: x\n    color: red\n",
		"bad gpa":       "students:\n  - id: " + uuid.NewString() + "\n    full_name: A\n    gpa: high\n",
		"bad kind":      "periods:\n  - name: x\n    capacity:\n      - kind: dorm\n        subject_id: " + uuid.NewString() + "\n",
		"bad student":   "students:\n  - id: nope\n    full_name: A\n    gpa: 3.0\n",
		"missing name":  "periods:\n  - label: x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadSeed(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}
