package services_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/period"
	"github.com/fit-portal/placement/modules/internship/services"
)

func TestPeriodDefine(t *testing.T) {
	f := newFixture(t)
	opens := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	p, err := f.periods.Define(f.ctx, services.DefinePeriodInput{Name: " autumn ", OpensAt: opens, ClosesAt: opens.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, "autumn", p.Name)
	require.Equal(t, period.StatusDraft, p.Status)

	_, err = f.periods.Define(f.ctx, services.DefinePeriodInput{Name: "x", OpensAt: opens, ClosesAt: opens})
	require.ErrorIs(t, err, services.ErrInvalidWindow)
	_, err = f.periods.Define(f.ctx, services.DefinePeriodInput{OpensAt: opens, ClosesAt: opens.Add(time.Hour)})
	require.ErrorIs(t, err, services.ErrInvalidWindow)

	all, err := f.periods.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, p.ID, all[0].ID)
}

func TestPeriodOpenCloseIdempotent(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	p, err := f.periods.Open(f.ctx, f.period.ID, now)
	require.NoError(t, err)
	require.Equal(t, period.StatusOpen, p.Status)

	open, err := f.periods.IsOpen(f.ctx, f.period.ID, now)
	require.NoError(t, err)
	require.True(t, open)

	for i := 0; i < 2; i++ {
		p, err = f.periods.Close(f.ctx, f.period.ID, now)
		require.NoError(t, err)
		require.Equal(t, period.StatusClosed, p.Status)
	}
	open, err = f.periods.IsOpen(f.ctx, f.period.ID, now)
	require.NoError(t, err)
	require.False(t, open)

	p, err = f.periods.Open(f.ctx, f.period.ID, now)
	require.NoError(t, err)
	require.Equal(t, period.StatusOpen, p.Status)

	cur, err := f.periods.Current(f.ctx, now)
	require.NoError(t, err)
	require.Equal(t, f.period.ID, cur.ID)
}

func TestPeriodWindowBounds(t *testing.T) {
	f := newFixture(t)

	open, err := f.periods.IsOpen(f.ctx, f.period.ID, f.period.ClosesAt)
	require.NoError(t, err)
	require.True(t, open)

	after := f.period.ClosesAt.Add(time.Second)
	open, err = f.periods.IsOpen(f.ctx, f.period.ID, after)
	require.NoError(t, err)
	require.False(t, open)

	_, err = f.periods.Current(f.ctx, after)
	require.ErrorIs(t, err, services.ErrNotFound)

	_, err = f.periods.Close(f.ctx, f.period.ID, after)
	require.NoError(t, err)
	_, err = f.periods.Open(f.ctx, f.period.ID, after)
	require.ErrorIs(t, err, services.ErrPeriodClosed)

	_, err = f.periods.Open(f.ctx, uuid.New(), after)
	require.ErrorIs(t, err, services.ErrNotFound)
}
