package runtime

import (
	"sync"

	"trainer-chat/domain"
)

// Canceler is what the registry needs from a subscription.
type Canceler interface {
	Cancel()
}

type consumerSubscriptions map[domain.ConversationKey]Canceler

// Registry tracks the live subscriptions of every logical consumer
// (a websocket connection, a view) so that one consumer never holds two
// subscriptions on the same conversation.
type Registry struct {
	mu        sync.RWMutex
	consumers map[string]consumerSubscriptions // consumer -> key -> subscription
}

func NewRegistry() *Registry {
	return &Registry{consumers: make(map[string]consumerSubscriptions)}
}

// Attach stores sub for consumerID and key, cancelling the subscription it replaces.
func (r *Registry) Attach(consumerID string, key domain.ConversationKey, sub Canceler) {
	r.mu.Lock()
	subs, ok := r.consumers[consumerID]
	if !ok {
		subs = make(consumerSubscriptions)
		r.consumers[consumerID] = subs
	}
	previous := subs[key]
	subs[key] = sub
	r.mu.Unlock()

	// Cancel may wait for a callback, never hold the lock meanwhile
	if previous != nil && previous != sub {
		previous.Cancel()
	}
}

// Replace cancels the subscription of consumerID on key, if any, and only
// then calls subscribe and attaches its result. The prior subscription has
// delivered its last callback before the new one starts.
func (r *Registry) Replace(consumerID string, key domain.ConversationKey, subscribe func() Canceler) Canceler {
	r.Detach(consumerID, key)
	sub := subscribe()
	r.Attach(consumerID, key, sub)
	return sub
}

// Detach cancels and forgets the subscription of consumerID on key, if any.
func (r *Registry) Detach(consumerID string, key domain.ConversationKey) {
	r.mu.Lock()
	sub := r.take(consumerID, key)
	r.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// take removes the subscription of consumerID on key. r.mu must be held.
func (r *Registry) take(consumerID string, key domain.ConversationKey) Canceler {
	subs, ok := r.consumers[consumerID]
	if !ok {
		return nil
	}
	sub := subs[key]
	delete(subs, key)
	// No empty sets are left behind
	if len(subs) == 0 {
		delete(r.consumers, consumerID)
	}
	return sub
}

// DetachConsumer cancels every subscription of consumerID.
func (r *Registry) DetachConsumer(consumerID string) {
	r.mu.Lock()
	subs := r.consumers[consumerID]
	delete(r.consumers, consumerID)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// Count returns the number of live subscriptions of consumerID.
func (r *Registry) Count(consumerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.consumers[consumerID])
}
