package dispatcher

import (
	"context"

	"github.com/garyjia/dealflow/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// wildcard is the pseudo event type under which SubscribeAll handlers are kept
const wildcard event.Type = "*"
