package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/domain/period"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/modules/internship/domain/student"
	"github.com/fit-portal/placement/modules/internship/infrastructure/memory"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/eventbus"
	"github.com/fit-portal/placement/pkg/outbox"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	ctx   context.Context
	clock *testClock
	store *memory.Store
	bus   eventbus.EventBus

	periods     *services.PeriodService
	capacity    *services.CapacityService
	assignments *services.AssignmentService
	preferences *services.PreferenceService
	decisions   *services.DecisionService
	queue       *services.ReviewQueueService

	period   period.Period
	reviewer uuid.UUID

	eventsMu sync.Mutex
	events   []events.PlacementEventV1
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	bus := eventbus.NewEventPublisher(logger)
	store := memory.New(bus)
	repos := store.Repositories()
	clock := &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}

	f := &fixture{
		ctx:      context.Background(),
		clock:    clock,
		store:    store,
		bus:      bus,
		reviewer: uuid.New(),
	}
	f.periods = services.NewPeriodService(repos, clock.Now)
	f.capacity = services.NewCapacityService(repos, clock.Now)
	f.assignments = services.NewAssignmentService(repos, f.periods, f.capacity, clock.Now)
	f.preferences = services.NewPreferenceService(repos, f.periods, 5, clock.Now)
	f.decisions = services.NewDecisionService(repos, f.periods, f.capacity, clock.Now)
	f.queue = services.NewReviewQueueService(repos, services.NewMemoryQueueCache(time.Minute))

	bus.Subscribe(func(_ *outbox.Meta, ev *events.PlacementEventV1) {
		f.eventsMu.Lock()
		defer f.eventsMu.Unlock()
		f.events = append(f.events, *ev)
	})

	p, err := f.periods.Define(f.ctx, services.DefinePeriodInput{
		Name:     "2026 spring",
		OpensAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ClosesAt: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	f.period, err = f.periods.Open(f.ctx, p.ID, clock.Now())
	require.NoError(t, err)
	return f
}

func (f *fixture) key(kind capacity.SubjectKind, id uuid.UUID) capacity.Key {
	return capacity.NewKey(f.period.ID, kind, id)
}

func (f *fixture) enroll(t *testing.T, kind capacity.SubjectKind, maxSlots int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := f.capacity.Enroll(f.ctx, f.key(kind, id), maxSlots)
	require.NoError(t, err)
	return id
}

func (f *fixture) usage(t *testing.T, kind capacity.SubjectKind, id uuid.UUID) capacity.Account {
	t.Helper()
	acc, err := f.capacity.CurrentUsage(f.ctx, f.key(kind, id))
	require.NoError(t, err)
	return acc
}

// student seeds a student with a guide from a roomy staff account.
func (f *fixture) student(t *testing.T, name, gpa string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.store.PutStudent(student.Student{ID: id, FullName: name, GPA: decimal.RequireFromString(gpa)})
	staff := f.enroll(t, capacity.KindStaff, 10)
	_, err := f.assignments.Assign(f.ctx, id, f.period.ID, staff)
	require.NoError(t, err)
	return id
}

func (f *fixture) submit(t *testing.T, studentID uuid.UUID, orgs ...uuid.UUID) []preference.Preference {
	t.Helper()
	prefs, err := f.preferences.Submit(f.ctx, studentID, f.period.ID, preference.ChoicesFromRanked(orgs), "")
	require.NoError(t, err)
	require.Len(t, prefs, len(orgs))
	return prefs
}

func (f *fixture) statuses(t *testing.T, studentID uuid.UUID) []preference.Status {
	t.Helper()
	prefs, err := f.preferences.ListFor(f.ctx, studentID, f.period.ID)
	require.NoError(t, err)
	out := make([]preference.Status, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, p.Status)
	}
	return out
}

func (f *fixture) changeTypes() []string {
	f.eventsMu.Lock()
	defer f.eventsMu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.ChangeType)
	}
	return out
}
