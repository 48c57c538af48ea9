package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/pkg/eventbus"
	"github.com/fit-portal/placement/pkg/outbox"
)

// Dispatcher decodes internship outbox rows and republishes them on the bus
// as (*outbox.Meta, *events.PlacementEventV1).
type Dispatcher struct {
	bus eventbus.EventBus
}

func NewDispatcher(bus eventbus.EventBus) *Dispatcher {
	return &Dispatcher{bus: bus}
}

func (d *Dispatcher) Dispatch(_ context.Context, msg outbox.DispatchedMessage) error {
	if d == nil || d.bus == nil {
		return fmt.Errorf("internship outbox dispatcher: bus is nil")
	}

	switch msg.Meta.Topic {
	case events.TopicPreferenceSubmittedV1, events.TopicPreferenceDecidedV1, events.TopicAssignmentChangedV1:
	default:
		return fmt.Errorf("internship outbox dispatcher: unsupported topic %q", msg.Meta.Topic)
	}

	var ev events.PlacementEventV1
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("internship outbox dispatcher: decode payload: %w", err)
	}

	return d.bus.PublishE(&msg.Meta, &ev)
}
