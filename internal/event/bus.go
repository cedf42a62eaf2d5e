package event

import (
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
)

// Handler is a function that handles an event.
type Handler func(Event)

// subscription represents a registered event handler. Pattern subscriptions
// carry a compiled glob; exact subscriptions leave it nil.
type subscription struct {
	id      string
	pattern string
	matcher glob.Glob
	handler Handler
}

// Bus is a simple synchronous pub-sub event bus. It allows the planner,
// pool, and recovery components to notify observers without direct
// dependencies.
type Bus struct {
	mu       sync.RWMutex
	exact    map[string][]subscription // eventType -> subscriptions
	patterns []subscription            // glob-pattern subscriptions
	nextID   atomic.Uint64
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		exact: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for a specific event type.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.generateID()
	b.exact[eventType] = append(b.exact[eventType], subscription{
		id:      id,
		pattern: eventType,
		handler: handler,
	})
	return id
}

// SubscribePattern registers a handler for all event types matching a glob
// pattern, e.g. "task.*" or "*.failed". Returns the subscription ID, or an
// error if the pattern does not compile.
func (b *Bus) SubscribePattern(pattern string, handler Handler) (string, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.generateID()
	b.patterns = append(b.patterns, subscription{
		id:      id,
		pattern: pattern,
		matcher: g,
		handler: handler,
	})
	return id, nil
}

// SubscribeAll registers a handler for all event types.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) SubscribeAll(handler Handler) string {
	id, _ := b.SubscribePattern("*", handler)
	return id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.exact {
		for i, sub := range subs {
			if sub.id == id {
				b.exact[eventType] = append(subs[:i], subs[i+1:]...)
				return true
			}
		}
	}
	for i, sub := range b.patterns {
		if sub.id == id {
			b.patterns = append(b.patterns[:i], b.patterns[i+1:]...)
			return true
		}
	}
	return false
}

// Publish dispatches an event to all registered handlers. Exact handlers
// are called first, followed by pattern handlers, each in registration
// order. If a handler panics, the panic is logged, recovered, and
// publishing continues to remaining handlers.
func (b *Bus) Publish(event Event) {
	eventType := event.EventType()

	b.mu.RLock()
	exactSubs := make([]subscription, len(b.exact[eventType]))
	copy(exactSubs, b.exact[eventType])

	var patternSubs []subscription
	for _, sub := range b.patterns {
		if sub.matcher.Match(eventType) {
			patternSubs = append(patternSubs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range exactSubs {
		b.safeCall(sub.handler, event)
	}
	for _, sub := range patternSubs {
		b.safeCall(sub.handler, event)
	}
}

// safeCall invokes a handler and recovers from any panics so one
// misbehaving handler cannot block event delivery to the others.
func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: event handler panicked for event %s: %v\n%s",
				event.EventType(), r, debug.Stack())
		}
	}()
	handler(event)
}

// generateID creates a unique subscription ID.
func (b *Bus) generateID() string {
	id := b.nextID.Add(1)
	return string(rune('a'+id%26)) + string(rune('0'+id/26%10)) + string(rune('a'+id/260%26))
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exact = make(map[string][]subscription)
	b.patterns = nil
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.patterns)
	for _, subs := range b.exact {
		count += len(subs)
	}
	return count
}
