package interfaces

import "github.com/cryptocrystian/pravado/internal/models"

// RunEventHandler receives lifecycle events for a subscribed run
type RunEventHandler func(event models.RunEvent)

// UnsubscribeFunc removes a subscription when called. Safe to call more
// than once.
type UnsubscribeFunc func()

// EventService is the in-memory pub/sub fabric keyed by run id. Events
// published for runs with no subscribers are dropped - the bus is for live
// observation, not an audit log.
type EventService interface {
	// Subscribe registers a handler for one run's events and returns an
	// unsubscribe closure. Handlers are invoked synchronously in
	// registration order.
	Subscribe(runID string, handler RunEventHandler) UnsubscribeFunc

	// Publish delivers an event to the subscribers of event.RunID, if any
	Publish(event models.RunEvent)

	// SubscriberCount returns the number of live subscribers for a run
	SubscriberCount(runID string) int

	// Close drops all subscriptions
	Close() error
}
