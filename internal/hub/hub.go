// Package hub is the live notification bus: one topic per session code,
// fanned out to every subscribed connection.
package hub

import (
	"context"
	"log"
	"sync"

	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// topic holds the subscribers of one session code
// TECHNICAL DISCOVERY: A per-topic publish lock keeps events for one session
// in publish order without making unrelated sessions wait on each other
type topic struct {
	publishMu   sync.Mutex
	subscribers map[string]interfaces.Subscriber // connection ID -> subscriber
}

// Hub implements interfaces.Publisher
// ARCHITECTURAL DISCOVERY: Topics and memberships are indexed both ways so a
// disconnect removes a connection from every topic without a full scan
type Hub struct {
	topics      map[string]*topic              // session code -> topic
	memberships map[string]map[string]struct{} // connection ID -> session codes

	running bool
	mu      sync.RWMutex
}

var _ interfaces.Publisher = (*Hub)(nil)

// NewHub creates a stopped hub
func NewHub() *Hub {
	return &Hub{
		topics:      make(map[string]*topic),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Start marks the hub running until Stop is called or ctx is done
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting notification hub...")

	go func() {
		<-ctx.Done()
		_ = h.Stop()
	}()
	return nil
}

// Stop drops every subscription and rejects further use
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false
	h.topics = make(map[string]*topic)
	h.memberships = make(map[string]map[string]struct{})

	log.Println("Stopping notification hub...")
	return nil
}

// Subscribe adds sub to the topic for code. Subscribing twice is a no-op.
func (h *Hub) Subscribe(sub interfaces.Subscriber, code string) error {
	if sub == nil {
		return ErrNilSubscriber
	}
	if code == "" {
		return ErrEmptySessionCode
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}

	t, exists := h.topics[code]
	if !exists {
		t = &topic{subscribers: make(map[string]interfaces.Subscriber)}
		h.topics[code] = t
	}
	t.subscribers[sub.ID()] = sub

	codes, exists := h.memberships[sub.ID()]
	if !exists {
		codes = make(map[string]struct{})
		h.memberships[sub.ID()] = codes
	}
	codes[code] = struct{}{}

	log.Printf("Subscribed: conn=%s user_id=%d code=%s subscribers=%d", sub.ID(), sub.UserID(), code, len(t.subscribers))
	return nil
}

// Unsubscribe removes a connection from one topic. When it returns, no
// publish that started earlier is still delivering to the connection.
func (h *Hub) Unsubscribe(connID, code string) error {
	h.mu.RLock()
	running := h.running
	_, member := h.memberships[connID][code]
	h.mu.RUnlock()

	if !running {
		return ErrHubNotRunning
	}
	if !member || !h.leave(connID, code) {
		return ErrNotSubscribed
	}

	log.Printf("Unsubscribed: conn=%s code=%s", connID, code)
	return nil
}

// UnsubscribeAll removes a connection from every topic and returns how many it left
func (h *Hub) UnsubscribeAll(connID string) int {
	h.mu.RLock()
	codes := make([]string, 0, len(h.memberships[connID]))
	for code := range h.memberships[connID] {
		codes = append(codes, code)
	}
	h.mu.RUnlock()

	n := 0
	for _, code := range codes {
		if h.leave(connID, code) {
			n++
		}
	}
	if n > 0 {
		log.Printf("Connection left all topics: conn=%s topics=%d", connID, n)
	}
	return n
}

// leave removes one membership while holding the topic's publish lock, so an
// in-flight publish finishes before the connection is dropped from it.
// TECHNICAL DISCOVERY: Lock order is always publishMu before mu
func (h *Hub) leave(connID, code string) bool {
	h.mu.RLock()
	t, exists := h.topics[code]
	h.mu.RUnlock()
	if !exists {
		return false
	}

	t.publishMu.Lock()
	defer t.publishMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, member := h.memberships[connID][code]; !member {
		return false
	}
	h.removeLocked(connID, code)
	return true
}

func (h *Hub) removeLocked(connID, code string) {
	if t, exists := h.topics[code]; exists {
		delete(t.subscribers, connID)
		if len(t.subscribers) == 0 {
			delete(h.topics, code)
		}
	}
	if codes, exists := h.memberships[connID]; exists {
		delete(codes, code)
		if len(codes) == 0 {
			delete(h.memberships, connID)
		}
	}
}

// Publish delivers event to every current subscriber of code and returns the
// number of successful deliveries. Delivery is best effort: a failing
// subscriber is logged and skipped.
func (h *Hub) Publish(code string, event types.Event) int {
	h.mu.RLock()
	t, exists := h.topics[code]
	running := h.running
	h.mu.RUnlock()
	if !running || !exists {
		return 0
	}

	t.publishMu.Lock()
	defer t.publishMu.Unlock()

	// Snapshot under the publish lock so a completed Unsubscribe is never
	// followed by a delivery to that connection
	h.mu.RLock()
	subscribers := make([]interfaces.Subscriber, 0, len(t.subscribers))
	for _, sub := range t.subscribers {
		subscribers = append(subscribers, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range subscribers {
		if err := sub.Send(event); err != nil {
			log.Printf("Dropped event: type=%s code=%s conn=%s err=%v", event.Type, code, sub.ID(), err)
			continue
		}
		delivered++
	}
	return delivered
}

// SubscriberCount returns the number of connections subscribed to code
func (h *Hub) SubscriberCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if t, exists := h.topics[code]; exists {
		return len(t.subscribers)
	}
	return 0
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subscriptions := 0
	for _, t := range h.topics {
		subscriptions += len(t.subscribers)
	}
	return map[string]interface{}{
		"running":       h.running,
		"topics":        len(h.topics),
		"connections":   len(h.memberships),
		"subscriptions": subscriptions,
	}
}
