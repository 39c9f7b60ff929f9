package multiagent

import (
	"log/slog"
	"sort"
	"sync"

	"relay-ai/internal/domain"
)

// Registry holds the agents of one catalog and resolves handoff targets by name.
type Registry struct {
	mu          sync.RWMutex
	agents      map[string]*domain.Agent
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates a Registry with the given default agent name.
func NewRegistry(defaultName string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	return &Registry{
		agents:      make(map[string]*domain.Agent),
		defaultName: defaultName,
		logger:      logger,
	}
}

// Register adds an agent. Returns an agent-duplicate error if the name is taken.
func (r *Registry) Register(agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := agent.Name()
	if _, exists := r.agents[name]; exists {
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrDuplicate, name)
	}
	r.agents[name] = agent
	r.logger.Debug("agent registered", "agent", name, "skills", agent.SkillNames(), "handoffs", agent.HandoffTargets())
	return nil
}

// Get returns the agent with the given name, or ErrAgentNotFound.
func (r *Registry) Get(name string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrAgentNotFound, name)
	}
	return a, nil
}

// Default returns the agent new sessions start with.
func (r *Registry) Default() (*domain.Agent, error) {
	return r.Get(r.defaultName)
}

// Names returns every registered agent name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the default agent exists and every handoff target
// names a registered agent.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.agents[r.defaultName]; !ok {
		return domain.NewDomainError("Registry.Validate", domain.ErrAgentNotFound, "default agent "+r.defaultName)
	}
	for _, a := range r.agents {
		for _, target := range a.HandoffTargets() {
			if _, ok := r.agents[target]; !ok {
				return domain.NewDomainError("Registry.Validate", domain.ErrAgentNotFound,
					a.Name()+" hands off to unknown agent "+target)
			}
		}
	}
	return nil
}
