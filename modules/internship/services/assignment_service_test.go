package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/services"
)

func TestAssignReplacesGuide(t *testing.T) {
	f := newFixture(t)
	x := f.enroll(t, capacity.KindStaff, 1)
	y := f.enroll(t, capacity.KindStaff, 1)
	s := uuid.New()

	first, err := f.assignments.Assign(f.ctx, s, f.period.ID, x)
	require.NoError(t, err)
	require.Equal(t, 1, f.usage(t, capacity.KindStaff, x).UsedSlots)

	again, err := f.assignments.Assign(f.ctx, s, f.period.ID, x)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, 1, f.usage(t, capacity.KindStaff, x).UsedSlots)

	second, err := f.assignments.Assign(f.ctx, s, f.period.ID, y)
	require.NoError(t, err)
	require.Equal(t, y, second.StaffID)
	require.Equal(t, 0, f.usage(t, capacity.KindStaff, x).UsedSlots)
	require.Equal(t, 1, f.usage(t, capacity.KindStaff, y).UsedSlots)

	cur, err := f.assignments.Current(f.ctx, s, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, cur.ID)

	history, err := f.assignments.History(f.ctx, s, f.period.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].ReplacedAt)
	require.Nil(t, history[1].ReplacedAt)

	require.Equal(t, []string{events.ChangeAssigned, events.ChangeReplaced}, f.changeTypes())
}

func TestAssignToFullGuideKeepsCurrent(t *testing.T) {
	f := newFixture(t)
	x := f.enroll(t, capacity.KindStaff, 1)
	y := f.enroll(t, capacity.KindStaff, 1)
	s, other := uuid.New(), uuid.New()

	first, err := f.assignments.Assign(f.ctx, s, f.period.ID, x)
	require.NoError(t, err)
	_, err = f.assignments.Assign(f.ctx, other, f.period.ID, y)
	require.NoError(t, err)

	_, err = f.assignments.Assign(f.ctx, s, f.period.ID, y)
	require.ErrorIs(t, err, services.ErrCapacityExceeded)

	require.Equal(t, 1, f.usage(t, capacity.KindStaff, x).UsedSlots)
	require.Equal(t, 1, f.usage(t, capacity.KindStaff, y).UsedSlots)
	cur, err := f.assignments.Current(f.ctx, s, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, cur.ID)
	require.Equal(t, x, cur.StaffID)

	history, err := f.assignments.History(f.ctx, s, f.period.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestAssignRejections(t *testing.T) {
	f := newFixture(t)
	staff := f.enroll(t, capacity.KindStaff, 1)

	_, err := f.assignments.Assign(f.ctx, uuid.Nil, f.period.ID, staff)
	require.ErrorIs(t, err, services.ErrInvalidBody)

	_, err = f.assignments.Assign(f.ctx, uuid.New(), f.period.ID, uuid.New())
	require.ErrorIs(t, err, services.ErrNotEnrolled)

	_, err = f.assignments.Assign(f.ctx, uuid.New(), uuid.New(), staff)
	require.ErrorIs(t, err, services.ErrNotFound)

	cur, err := f.assignments.Current(f.ctx, uuid.New(), f.period.ID)
	require.NoError(t, err)
	require.Nil(t, cur)

	_, err = f.periods.Close(f.ctx, f.period.ID, f.clock.Now())
	require.NoError(t, err)
	_, err = f.assignments.Assign(f.ctx, uuid.New(), f.period.ID, staff)
	require.ErrorIs(t, err, services.ErrPeriodClosed)
	require.Equal(t, 0, f.usage(t, capacity.KindStaff, staff).UsedSlots)
}
