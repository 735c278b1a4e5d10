// Package feed is the change-notification layer consumed by dashboard and
// receiver observers. The store publishes the full current set of a
// collection after every mutation; subscribers receive snapshots and never
// read the database directly.
package feed

import (
	"context"
	"sync"

	"github.com/wartelsys/wartel/internal/models"
)

// Collection names carried on events.
const (
	CollectionVouchers = "vouchers"
	CollectionSessions = "sessions"
)

// Event is one pushed snapshot of a collection.
type Event struct {
	Collection string           `json:"collection"`
	Vouchers   []models.Voucher `json:"vouchers,omitempty"`
	Sessions   []models.Session `json:"sessions,omitempty"`

	// Origin identifies the publishing process so a redis mirror can skip
	// events it published itself.
	Origin string `json:"origin,omitempty"`
}

// Publisher is the write side of the feed. The store publishes through this
// interface so single-instance deployments use the Bus directly while
// multi-instance deployments use the redis Mirror.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LocalPublisher adapts a Bus to the Publisher interface.
type LocalPublisher struct {
	Bus *Bus
}

// Publish delivers the event to in-process subscribers only.
func (p LocalPublisher) Publish(_ context.Context, event Event) {
	p.Bus.Publish(event)
}

// Bus fans events out to in-process subscribers. Delivery is best-effort: a
// subscriber that stops draining loses intermediate snapshots but the next
// event always carries the full current set, so nothing is missed for long.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The channel closes when ctx is done or the
// returned cancel function runs.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if existing, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(existing)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking. When a
// subscriber's buffer is full its stale snapshot is replaced by the new one.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}
