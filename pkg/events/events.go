// Package events fans out the structured records emitted when an Action
// reaches a terminal status to whatever is listening: a log sink, a
// metrics counter, an in-process test subscriber.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/nodeforge/fleetengine/pkg/types"
)

// Severity levels an Event can carry: four tiers, from INFO to CRITICAL.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
	LevelCritical = "CRITICAL"
)

// Sink accepts a completed Event. Implementations must not block the
// caller for long; the action engine emits on the hot path of every status
// transition.
type Sink interface {
	Emit(ctx context.Context, ev types.Event)
}

// Subscriber is a channel that receives events published through a Broker.
type Subscriber chan types.Event

// Broker is the in-process pub-sub Sink: one publisher goroutine serializes
// delivery, subscribers get their own buffered channel, and an event is
// silently dropped for any subscriber whose buffer is full.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan types.Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan types.Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Emit implements Sink. The context is not consulted: delivery is
// best-effort and never blocks past the broker's own shutdown.
func (b *Broker) Emit(_ context.Context, ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Level == "" {
		ev.Level = LevelInfo
	}

	select {
	case b.eventCh <- ev:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(ev types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			// subscriber buffer full, drop
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
