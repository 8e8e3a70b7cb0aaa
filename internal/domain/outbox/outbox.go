package outbox

import "context"

// Event is a named domain event carried across bounded contexts.
type Event interface {
	EventName() string
}

// Handler consumes one published event.
type Handler func(ctx context.Context, e Event) error

// Publisher hands events to whatever fanout sits behind it; the checkout
// orchestrator publishes and never blocks on delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber attaches handlers by event name.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
