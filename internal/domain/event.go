package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventSessionClosed    EventType = "session.closed"
	EventMessageReceived  EventType = "message.received"
	EventMessageSent      EventType = "message.sent"
	EventAgentHandoff     EventType = "agent.handoff"
	EventFastPath         EventType = "agent.fastpath"
	EventAgentError       EventType = "agent.error"
	EventLLMCallStarted   EventType = "llm.call.started"
	EventLLMCallCompleted EventType = "llm.call.completed"
	EventStreamStarted    EventType = "stream.started"
	EventStreamCompleted  EventType = "stream.completed"
	EventStreamError      EventType = "stream.error"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// HandoffPayload is the payload for EventAgentHandoff events.
type HandoffPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Route is the name of the routing rule that matched.
	Route string `json:"route,omitempty"`
	// Note is the system-note text recorded for the transition.
	Note string `json:"note,omitempty"`
}

// FastPathPayload is the payload for EventFastPath events.
type FastPathPayload struct {
	Agent    string   `json:"agent"`
	Route    string   `json:"route"`
	Skills   []string `json:"skills"`
	Argument string   `json:"argument"`
}

// AgentErrorPayload is the payload for EventAgentError events.
type AgentErrorPayload struct {
	Agent string    `json:"agent"`
	Code  ErrorCode `json:"code"`
	Error string    `json:"error"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
// Delivery is fire-and-forget: publishers never wait for handlers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
