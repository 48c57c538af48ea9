package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/modules/internship/domain/student"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/outbox"
)

func studentIDs(entries []services.QueueEntry) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.StudentID)
	}
	return out
}

func TestReviewQueueOrdering(t *testing.T) {
	f := newFixture(t)
	f.bus.Subscribe(func(meta *outbox.Meta, ev *events.PlacementEventV1) {
		if ev.AffectsQueue() {
			f.queue.Invalidate(f.ctx, meta.AggregateID, ev.ChangeType)
		}
	})
	org := f.enroll(t, capacity.KindEnterprise, 5)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	a, b, c := f.student(t, "A", "3.8"), f.student(t, "B", "3.9"), f.student(t, "C", "3.8")
	f.clock.Set(at(10, 0))
	pa := f.submit(t, a, org)
	f.clock.Set(at(9, 0))
	f.submit(t, b, org)
	f.clock.Set(at(9, 30))
	f.submit(t, c, org)

	got, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{b, c, a}, studentIDs(got))
	require.Equal(t, "B", got[0].FullName)
	require.True(t, got[0].GPA.Equal(decimal.RequireFromString("3.9")))
	require.Len(t, got[0].Ranks, 1)

	paged, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{c}, studentIDs(paged))

	minGPA := decimal.RequireFromString("3.85")
	high, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{MinGPA: &minGPA})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{b}, studentIDs(high))

	_, err = f.decisions.Approve(f.ctx, pa[0].ID, f.reviewer)
	require.NoError(t, err)

	undecided, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{b, c}, studentIDs(undecided))

	placed, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{Outcome: string(preference.OutcomeOrganization)})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a}, studentIDs(placed))
	require.Equal(t, preference.StatusApproved, placed[0].Ranks[0].Status)

	all, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{Outcome: services.OutcomeAll})
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestReviewQueueEmptyAndInvalid(t *testing.T) {
	f := newFixture(t)

	got, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{})
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{Outcome: "maybe"})
	require.ErrorIs(t, err, services.ErrInvalidBody)
}

func TestReviewQueueMissingStudentRecord(t *testing.T) {
	f := newFixture(t)
	org := f.enroll(t, capacity.KindEnterprise, 1)
	staff := f.enroll(t, capacity.KindStaff, 1)
	ghost := uuid.New()
	_, err := f.assignments.Assign(f.ctx, ghost, f.period.ID, staff)
	require.NoError(t, err)
	f.submit(t, ghost, org)

	got, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].GPA.IsZero())
	require.Empty(t, got[0].FullName)
}

// midLookupDirectory runs during once before the first lookup returns,
// standing in for a decision that commits while a projection is built.
type midLookupDirectory struct {
	services.StudentDirectory
	once   sync.Once
	during func()
}

func (d *midLookupDirectory) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]student.Student, error) {
	d.once.Do(d.during)
	return d.StudentDirectory.Lookup(ctx, ids)
}

func TestReviewQueueDropsProjectionRacingDecision(t *testing.T) {
	f := newFixture(t)
	org := f.enroll(t, capacity.KindEnterprise, 1)
	a := f.student(t, "A", "3.5")
	prefs := f.submit(t, a, org)

	repos := f.store.Repositories()
	dir := &midLookupDirectory{StudentDirectory: repos.Students}
	repos.Students = dir
	queue := services.NewReviewQueueService(repos, services.NewMemoryQueueCache(time.Minute))
	f.bus.Subscribe(func(meta *outbox.Meta, ev *events.PlacementEventV1) {
		if ev.AffectsQueue() {
			queue.Invalidate(f.ctx, meta.AggregateID, ev.ChangeType)
		}
	})
	dir.during = func() {
		_, err := f.decisions.Approve(context.Background(), prefs[0].ID, f.reviewer)
		require.NoError(t, err)
	}

	first, err := queue.Rank(f.ctx, f.period.ID, services.QueueFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a}, studentIDs(first))

	outcome, err := f.decisions.Outcome(f.ctx, a, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, preference.OutcomeOrganization, outcome.Outcome)

	again, err := queue.Rank(f.ctx, f.period.ID, services.QueueFilter{})
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestReviewQueueNameFilter(t *testing.T) {
	f := newFixture(t)
	org := f.enroll(t, capacity.KindEnterprise, 3)
	ana, bo := f.student(t, "Ana Petrović", "3.1"), f.student(t, "Bo Lindqvist", "3.6")
	f.submit(t, ana, org)
	f.submit(t, bo, org)

	got, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{Name: "petrovic"})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{ana}, studentIDs(got))

	all, err := f.queue.Rank(f.ctx, f.period.ID, services.QueueFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{bo, ana}, studentIDs(all))
}
