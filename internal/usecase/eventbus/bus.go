package eventbus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"relay-ai/internal/domain"
)

type subscription struct {
	id      uint64
	handler domain.EventHandler
	// session restricts delivery to one session's events; such
	// subscriptions run inline on the publisher's goroutine.
	session string
}

// Bus is an in-process, goroutine-safe event bus.
//
// Typed and all-event subscribers run on their own goroutines. Session
// subscribers run inline, before Publish returns, so a transport sees a
// session's events in the order the dispatcher emitted them.
type Bus struct {
	mu       sync.RWMutex
	typed    map[domain.EventType][]subscription
	allSubs  []subscription
	sessions map[string][]subscription
	nextID   atomic.Uint64
	logger   *slog.Logger
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:    make(map[domain.EventType][]subscription),
		sessions: make(map[string][]subscription),
		logger:   logger,
	}
}

// Publish fans out an event to matching subscribers. Publish never waits
// for asynchronous handlers. Panicking handlers are recovered.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	typed := slices.Clone(b.typed[event.Type])
	allSubs := slices.Clone(b.allSubs)
	var inline []subscription
	if event.SessionID != "" {
		inline = slices.Clone(b.sessions[event.SessionID])
	}
	b.mu.RUnlock()

	for _, sub := range inline {
		b.invoke(ctx, event, sub)
	}
	for _, sub := range typed {
		b.dispatch(ctx, event, sub)
	}
	for _, sub := range allSubs {
		b.dispatch(ctx, event, sub)
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.invoke(ctx, event, sub)
	}()
}

func (b *Bus) invoke(ctx context.Context, event domain.Event, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(event.Type),
				"session_id", event.SessionID,
				"panic", r,
			)
		}
	}()
	sub.handler(ctx, event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := subscription{id: b.nextID.Add(1), handler: handler}

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[eventType] = without(b.typed[eventType], sub.id)
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := subscription{id: b.nextID.Add(1), handler: handler}

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = without(b.allSubs, sub.id)
	}
}

// SubscribeSession registers an inline handler for every event of one
// session. The handler runs on the publisher's goroutine and must not block.
// Returns an unsubscribe function.
func (b *Bus) SubscribeSession(sessionID string, handler domain.EventHandler) func() {
	sub := subscription{id: b.nextID.Add(1), handler: handler, session: sessionID}

	b.mu.Lock()
	b.sessions[sessionID] = append(b.sessions[sessionID], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		remaining := without(b.sessions[sessionID], sub.id)
		if len(remaining) == 0 {
			delete(b.sessions, sessionID)
			return
		}
		b.sessions[sessionID] = remaining
	}
}

func without(subs []subscription, id uint64) []subscription {
	return slices.DeleteFunc(slices.Clone(subs), func(s subscription) bool { return s.id == id })
}

// Close prevents new publishes and waits for all in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
