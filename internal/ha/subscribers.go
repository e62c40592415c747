package ha

import "sync"

// subscriberSet holds handlers of one type keyed by a unique subscription ID.
// Handlers are called in subscription order.
type subscriberSet[H any] struct {
	mu      sync.RWMutex
	nextID  int
	ids     []int
	entries map[int]H
}

func newSubscriberSet[H any]() *subscriberSet[H] {
	return &subscriberSet[H]{entries: make(map[int]H)}
}

func (s *subscriberSet[H]) add(handler H) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.ids = append(s.ids, id)
	s.entries[id] = handler
	return &subscription{remove: func() { s.remove(id) }}
}

func (s *subscriberSet[H]) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return // Already unsubscribed
	}
	delete(s.entries, id)
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

func (s *subscriberSet[H]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = nil
	s.entries = make(map[int]H)
}

// snapshot returns the handlers so they can be called without holding the lock
func (s *subscriberSet[H]) snapshot() []H {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handlers := make([]H, 0, len(s.ids))
	for _, id := range s.ids {
		handlers = append(handlers, s.entries[id])
	}
	return handlers
}

// len reports the number of active handlers
func (s *subscriberSet[H]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func notifyState(s *subscriberSet[StateChangeHandler], entityID string, oldState, newState *State) {
	for _, handler := range s.snapshot() {
		handler(entityID, oldState, newState)
	}
}

func notifyRegistry(s *subscriberSet[RegistryChangeHandler], eventType string) {
	for _, handler := range s.snapshot() {
		handler(eventType)
	}
}
