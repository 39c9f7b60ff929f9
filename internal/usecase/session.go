package usecase

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"relay-ai/internal/domain"
)

// RunConfig is the capability configuration a session passes to the
// provider on every call. The dispatcher does not interpret it beyond
// choosing between streamed and complete replies.
type RunConfig struct {
	Model       string  `json:"model,omitempty"`
	Stream      bool    `json:"stream"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Session is the state of one conversation: the active agent, the
// append-only transcript and the run configuration. It is owned by a single
// conversation and mutated only by the Dispatcher.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.RWMutex
	active    *domain.Agent
	turns     []domain.Turn
	config    RunConfig
	updatedAt time.Time

	// busy is held from the start of Handle until the reply is final,
	// including the lifetime of a returned Stream.
	busy atomic.Bool
}

// NewSession creates a session with a generated ULID, starting on agent.
func NewSession(agent *domain.Agent, cfg RunConfig) *Session {
	now := time.Now()
	return &Session{
		ID:        generateULID(now),
		CreatedAt: now,
		active:    agent,
		turns:     make([]domain.Turn, 0, 8),
		config:    cfg,
		updatedAt: now,
	}
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// generateULID returns IDs that sort in creation order, also within the
// same millisecond.
func generateULID(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// ActiveAgent returns the agent currently handling the conversation.
func (s *Session) ActiveAgent() *domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Transcript returns a copy of the turns so far.
func (s *Session) Transcript() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Turn, len(s.turns))
	copy(cp, s.turns)
	return cp
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Config returns the session's run configuration.
func (s *Session) Config() RunConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// UpdatedAt returns the time of the last appended turn.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Busy reports whether a reply is still being produced.
func (s *Session) Busy() bool { return s.busy.Load() }

func (s *Session) appendTurn(t domain.Turn) domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.turns = append(s.turns, t)
	s.updatedAt = t.Timestamp
	return t
}

func (s *Session) switchAgent(a *domain.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = a
}

func (s *Session) tryAcquire() bool { return s.busy.CompareAndSwap(false, true) }

func (s *Session) release() { s.busy.Store(false) }

// SessionManager tracks the live sessions of one process. Sessions are
// in-memory only and vanish when closed.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	bus      domain.EventBus
}

// NewSessionManager creates a session manager. bus may be nil.
func NewSessionManager(bus domain.EventBus) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		bus:      bus,
	}
}

// Create starts a new session on agent.
func (sm *SessionManager) Create(ctx context.Context, agent *domain.Agent, cfg RunConfig) *Session {
	s := NewSession(agent, cfg)

	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()

	publishEvent(sm.bus, ctx, domain.EventSessionCreated, s.ID, map[string]string{"agent": agent.Name()})
	return s
}

// Get returns a live session by ID.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, ok := sm.sessions[id]
	if !ok {
		return nil, domain.NewDomainError("SessionManager.Get", domain.ErrSessionNotFound, id)
	}
	return s, nil
}

// Close discards a session and its transcript.
func (sm *SessionManager) Close(ctx context.Context, id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	if !ok {
		return domain.NewDomainError("SessionManager.Close", domain.ErrSessionNotFound, id)
	}
	publishEvent(sm.bus, ctx, domain.EventSessionClosed, id, map[string]int{"turns": s.Len()})
	return nil
}

// List returns live session IDs, sorted.
func (sm *SessionManager) List() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
