package persistence

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/pkg/composables"
	"github.com/fit-portal/placement/pkg/outbox"
)

// EventRecorder enqueues placement events in the outbox table inside the
// caller's transaction; the relay delivers them after commit. Events are also
// handed to the store's commit hook once the transaction commits.
type EventRecorder struct {
	store     *Store
	publisher outbox.Publisher
}

func (r *EventRecorder) Record(ctx context.Context, ev events.PlacementEventV1) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode placement event")
	}
	if _, err := r.publisher.Enqueue(ctx, r.store.querier(ctx), outbox.Message{
		Topic:       events.Topic(ev.ChangeType),
		EventID:     ev.EventID,
		AggregateID: ev.PeriodID,
		Payload:     payload,
	}); err != nil {
		return errors.Wrap(err, "enqueue placement event")
	}
	if c, ok := ctx.Value(pendingKey{}).(*pendingEvents); ok && composables.HasTx(ctx) {
		c.events = append(c.events, ev)
	} else {
		r.store.committed(ctx, []events.PlacementEventV1{ev})
	}
	return nil
}
