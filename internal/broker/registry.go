// ABOUTME: In-memory handler registry for bus subscriptions
// ABOUTME: Tracks topic -> subscription ID -> handler and first/last transitions

package broker

import (
	"sync"

	"github.com/google/uuid"
)

// registry maps topics to their registered handlers. It reports first/last
// transitions so the bus knows when to start or stop consuming a topic.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler // topic -> subID -> handler
}

func newRegistry() *registry {
	return &registry{
		handlers: make(map[string]map[string]Handler),
	}
}

// add registers a handler and returns its subscription ID and whether it is
// the first handler on the topic.
func (r *registry) add(topic string, h Handler) (string, bool) {
	subID := uuid.New().String()

	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.handlers[topic]
	if !ok {
		subs = make(map[string]Handler)
		r.handlers[topic] = subs
	}
	subs[subID] = h
	return subID, len(subs) == 1
}

// remove deletes a handler and reports whether it was the last one on the
// topic. Unknown topics or IDs report false.
func (r *registry) remove(topic, subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.handlers[topic]
	if !ok {
		return false
	}
	if _, exists := subs[subID]; !exists {
		return false
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(r.handlers, topic)
		return true
	}
	return false
}

// dispatch invokes every handler registered for the topic. Handlers run
// synchronously so records keep their order; they must not block.
func (r *registry) dispatch(topic string, payload []byte) {
	r.mu.RLock()
	subs, ok := r.handlers[topic]
	if !ok || len(subs) == 0 {
		r.mu.RUnlock()
		return
	}
	targets := make([]Handler, 0, len(subs))
	for _, h := range subs {
		targets = append(targets, h)
	}
	r.mu.RUnlock()

	for _, h := range targets {
		h(topic, payload)
	}
}

// count returns the number of handlers on a topic.
func (r *registry) count(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[topic])
}

// topics returns the topics with at least one handler.
func (r *registry) topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		out = append(out, topic)
	}
	return out
}

// clear drops every registered handler.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]map[string]Handler)
}
