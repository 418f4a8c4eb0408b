package services

import (
	"context"

	"saldo/internal/amqp"
	applog "saldo/internal/log"
)

// Publisher delivers ledger events. *amqp.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, e amqp.Event) error
}

// notifier publishes events best effort. A nil publisher skips them.
type notifier struct {
	events Publisher
}

func (n notifier) publish(ctx context.Context, typ, entityID, ownerID, actorID string) {
	if n.events == nil {
		applog.FromContext(ctx).DebugContext(ctx, "AMQP publisher not available, skipping event", "type", typ)
		return
	}

	if err := n.events.Publish(ctx, amqp.NewEvent(typ, entityID, ownerID, actorID)); err != nil {
		// Don't fail the request - the change is already stored
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to publish event",
			"type", typ,
			"entity_id", entityID,
			"error", err)
	}
}
