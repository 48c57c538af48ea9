package outbox

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Message is the unit stored in an outbox table.
type Message struct {
	Topic   string
	EventID uuid.UUID
	// AggregateID groups messages for ordering and ops queries (e.g. the period).
	AggregateID uuid.UUID
	Payload     json.RawMessage
}

// Meta is the stable dispatch metadata handed to dispatchers.
type Meta struct {
	Table       pgx.Identifier
	Topic       string
	EventID     uuid.UUID
	AggregateID uuid.UUID
	Sequence    int64
	Attempts    int
}

// DispatchedMessage is the unit delivered by Relay to a Dispatcher.
type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}

func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}
