package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/eventbus"
	"github.com/fit-portal/placement/pkg/outbox"
)

// PlacementEventHandler reacts to committed placement changes. Handlers must
// be idempotent: the relay delivers at least once.
type PlacementEventHandler struct {
	queue *services.ReviewQueueService
	log   *logrus.Entry
}

func RegisterPlacementEventHandler(bus eventbus.EventBus, queue *services.ReviewQueueService, log *logrus.Entry) *PlacementEventHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &PlacementEventHandler{queue: queue, log: log.WithField("component", "internship-events")}
	bus.Subscribe(h.onPlacementEventV1)
	return h
}

func (h *PlacementEventHandler) onPlacementEventV1(meta *outbox.Meta, ev *events.PlacementEventV1) error {
	if ev == nil {
		return nil
	}
	fields := logrus.Fields{
		"topic":       meta.Topic,
		"event_id":    ev.EventID.String(),
		"period_id":   ev.PeriodID.String(),
		"student_id":  ev.StudentID.String(),
		"change_type": ev.ChangeType,
		"attempts":    meta.Attempts,
	}
	if ev.RequestID != "" {
		fields["request-id"] = ev.RequestID
	}

	if ev.AffectsQueue() {
		h.queue.Invalidate(context.Background(), ev.PeriodID, ev.ChangeType)
	}
	h.log.WithFields(fields).Info("internship.event.delivered")
	return nil
}

// InvalidateOnCommit drops the queues touched by a committed unit of work.
func InvalidateOnCommit(queue *services.ReviewQueueService) func(ctx context.Context, evs []events.PlacementEventV1) {
	return func(ctx context.Context, evs []events.PlacementEventV1) {
		seen := make(map[uuid.UUID]struct{}, 1)
		for _, ev := range evs {
			if !ev.AffectsQueue() {
				continue
			}
			if _, ok := seen[ev.PeriodID]; ok {
				continue
			}
			seen[ev.PeriodID] = struct{}{}
			queue.Invalidate(ctx, ev.PeriodID, ev.ChangeType)
		}
	}
}
