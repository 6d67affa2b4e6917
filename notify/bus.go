// Package notify implements the change-notification layer: an in-process
// fan-out bus and a cross-process PostgreSQL LISTEN/NOTIFY listener with
// durable checkpointing, per SPEC_FULL §4.5. The in-process Bus is
// grounded on _examples/original_source/store/subscriptions.py's EventBus
// (type/entity/catch-all listener maps, per-callback failure isolation);
// the cross-process Listener is grounded on pkg/pgnotify/bus.go's
// reconnect/dispatch loop (adapted in place — see Listener in listener.go)
// combined with subscriptions.py's SubscriptionListener checkpoint
// persistence shape.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/r3e-network/objectstore/infrastructure/logging"
	"github.com/r3e-network/objectstore/store"
)

// Handler receives a delivered ChangeEvent.
type Handler func(store.ChangeEvent)

// Bus is an in-process publish/subscribe fan-out: components within one
// process (the reactive graph, ticking views, audit mirrors) subscribe by
// type name, by entity ID, or to every event.
type Bus struct {
	mu       sync.RWMutex
	byType   map[string][]Handler
	byEntity map[uuid.UUID][]Handler
	all      []Handler
	logger   *logging.Logger
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{
		byType:   map[string][]Handler{},
		byEntity: map[uuid.UUID][]Handler{},
		logger:   logging.Default(),
	}
}

// On subscribes handler to every ChangeEvent whose TypeName matches.
func (b *Bus) On(typeName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[typeName] = append(b.byType[typeName], handler)
}

// OnEntity subscribes handler to every ChangeEvent for one entity.
func (b *Bus) OnEntity(entityID uuid.UUID, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byEntity[entityID] = append(b.byEntity[entityID], handler)
}

// OnAll subscribes handler to every ChangeEvent published on this bus. The
// returned func removes this handler only, for callers (like a WebSocket
// connection's subscription) whose lifetime is shorter than the bus's.
func (b *Bus) OnAll(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
	id := len(b.all) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if id < len(b.all) {
			b.all[id] = func(store.ChangeEvent) {}
		}
	}
}

// Off/OffEntity/OffAll clear all handlers registered for a key (or every
// handler, for OffAll), matching subscriptions.py's off/off_entity/off_all.
func (b *Bus) Off(typeName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byType, typeName)
}

func (b *Bus) OffEntity(entityID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byEntity, entityID)
}

func (b *Bus) OffAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = nil
}

// Emit dispatches ev to every matching handler. Each handler runs isolated:
// a panic is caught and logged, and does not prevent other handlers (or
// other subscription classes) from running.
func (b *Bus) Emit(ev store.ChangeEvent) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.byType[ev.TypeName]...)
	handlers = append(handlers, b.byEntity[ev.EntityID]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, ev)
	}
}

func (b *Bus) dispatch(h Handler, ev store.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(context.Background(), "notify: subscriber callback panicked",
				fmt.Errorf("%v", r), map[string]any{"entity_id": ev.EntityID.String(), "type_name": ev.TypeName})
		}
	}()
	h(ev)
}
