// Package events implements the in-memory run event bus. Subscriptions are
// keyed by run id; events for runs nobody watches are dropped, not buffered.
package events

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
)

// subscription pairs a handler with a stable id so unsubscribe can remove
// exactly this registration
type subscription struct {
	id      uint64
	handler interfaces.RunEventHandler
}

// Service implements EventService with per-run subscriber lists
type Service struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextID      uint64
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[string][]subscription),
		logger:      logger,
	}
}

// Subscribe registers a handler for one run's events. The returned closure
// removes the subscription; the run's map entry is dropped when the last
// subscriber leaves.
func (s *Service) Subscribe(runID string, handler interfaces.RunEventHandler) interfaces.UnsubscribeFunc {
	if handler == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subscribers[runID] = append(s.subscribers[runID], subscription{id: id, handler: handler})
	count := len(s.subscribers[runID])
	s.mu.Unlock()

	s.logger.Debug().
		Str("run_id", runID).
		Int("subscriber_count", count).
		Msg("Run event subscriber registered")

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		subs := s.subscribers[runID]
		for i, sub := range subs {
			if sub.id == id {
				s.subscribers[runID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(s.subscribers[runID]) == 0 {
			delete(s.subscribers, runID)
		}
	}
}

// Publish delivers an event to the run's subscribers synchronously in
// registration order. A panicking handler is isolated and logged so it
// cannot break delivery to the others. No subscribers means the event is
// dropped.
func (s *Service) Publish(event models.RunEvent) {
	s.mu.RLock()
	subs := make([]subscription, len(s.subscribers[event.RunID]))
	copy(subs, s.subscribers[event.RunID])
	s.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		s.deliver(sub, event)
	}
}

func (s *Service) deliver(sub subscription, event models.RunEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("run_id", event.RunID).
				Str("event_type", string(event.Type)).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Run event handler panicked")
		}
	}()
	sub.handler(event)
}

// SubscriberCount returns the number of live subscribers for a run
func (s *Service) SubscriberCount(runID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[runID])
}

// Close drops all subscriptions
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[string][]subscription)
	s.logger.Debug().Msg("Event service closed")
	return nil
}
