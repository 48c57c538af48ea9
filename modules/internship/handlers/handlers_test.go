package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/domain/student"
	"github.com/fit-portal/placement/modules/internship/infrastructure/memory"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/eventbus"
	"github.com/fit-portal/placement/pkg/outbox"
)

type countingCache struct {
	services.QueueCache
	invalidated []uuid.UUID
}

func (c *countingCache) InvalidatePeriod(ctx context.Context, periodID uuid.UUID) {
	c.invalidated = append(c.invalidated, periodID)
	c.QueueCache.InvalidatePeriod(ctx, periodID)
}

func TestDispatcherRepublishesDecodedEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	bus := eventbus.NewEventPublisher(logger)
	cache := &countingCache{QueueCache: services.NewMemoryQueueCache(time.Minute)}
	store := memory.New(bus)
	queue := services.NewReviewQueueService(store.Repositories(), cache)
	RegisterPlacementEventHandler(bus, queue, logrus.NewEntry(logger))

	periodID := uuid.New()
	ev := events.PlacementEventV1{
		EventID:      uuid.New(),
		EventVersion: events.EventVersionV1,
		PeriodID:     periodID,
		StudentID:    uuid.New(),
		ChangeType:   events.ChangeApproved,
		OccurredAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	d := NewDispatcher(bus)
	err = d.Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: events.TopicPreferenceDecidedV1, EventID: ev.EventID, AggregateID: periodID, Attempts: 1},
		Payload: payload,
	})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{periodID}, cache.invalidated)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "internship.event.delivered", entry.Message)
	require.Equal(t, events.ChangeApproved, entry.Data["change_type"])
}

func TestAssignmentEventsKeepQueue(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := eventbus.NewEventPublisher(logger)
	cache := &countingCache{QueueCache: services.NewNoopQueueCache()}
	queue := services.NewReviewQueueService(memory.New(bus).Repositories(), cache)
	RegisterPlacementEventHandler(bus, queue, nil)

	require.NoError(t, bus.PublishE(&outbox.Meta{Topic: events.TopicAssignmentChangedV1}, &events.PlacementEventV1{ChangeType: events.ChangeReplaced}))
	require.Empty(t, cache.invalidated)
}

func TestDispatcherRejectsUnknownTopicAndBadPayload(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := NewDispatcher(eventbus.NewEventPublisher(logger))

	err := d.Dispatch(context.Background(), outbox.DispatchedMessage{Meta: outbox.Meta{Topic: "org.changed.v1"}})
	require.ErrorContains(t, err, "unsupported topic")

	err = d.Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: events.TopicPreferenceSubmittedV1},
		Payload: json.RawMessage(`{"event_id":`),
	})
	require.ErrorContains(t, err, "decode payload")

	var nilDispatcher *Dispatcher
	require.Error(t, nilDispatcher.Dispatch(context.Background(), outbox.DispatchedMessage{}))
}

func TestMemoryCommitInvalidatesQueue(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := eventbus.NewEventPublisher(logger)
	store := memory.New(bus)
	cache := &countingCache{QueueCache: services.NewMemoryQueueCache(time.Minute)}
	queue := services.NewReviewQueueService(store.Repositories(), cache)
	RegisterPlacementEventHandler(bus, queue, nil)
	store.PutStudent(student.Student{ID: uuid.New(), GPA: decimal.Zero})

	periodID := uuid.New()
	err := store.InTx(context.Background(), func(ctx context.Context) error {
		return store.Record(ctx, events.PlacementEventV1{EventID: uuid.New(), PeriodID: periodID, ChangeType: events.ChangeSubmitted})
	})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{periodID}, cache.invalidated)
}

func TestInvalidateOnCommitDropsTouchedPeriodsOnce(t *testing.T) {
	store := memory.New(nil)
	cache := &countingCache{QueueCache: services.NewMemoryQueueCache(time.Minute)}
	queue := services.NewReviewQueueService(store.Repositories(), cache)
	hook := InvalidateOnCommit(queue)

	first, second := uuid.New(), uuid.New()
	hook(context.Background(), []events.PlacementEventV1{
		{PeriodID: first, ChangeType: events.ChangeApproved},
		{PeriodID: first, ChangeType: events.ChangeRejected},
		{PeriodID: second, ChangeType: events.ChangeReplaced},
		{PeriodID: second, ChangeType: events.ChangeSubmitted},
	})
	require.Equal(t, []uuid.UUID{first, second}, cache.invalidated)

	hook(context.Background(), []events.PlacementEventV1{{PeriodID: first, ChangeType: events.ChangeReplaced}})
	require.Len(t, cache.invalidated, 2)
}
