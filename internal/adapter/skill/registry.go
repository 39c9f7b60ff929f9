package skill

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"relay-ai/internal/domain"
)

// Registry holds named skill functions.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]domain.SkillFunc
	logger *slog.Logger
}

// NewRegistry creates an empty skill registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		skills: make(map[string]domain.SkillFunc),
		logger: logger,
	}
}

// NewBuiltinRegistry returns a registry preloaded with the builtin skills.
func NewBuiltinRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	for name, fn := range Builtins() {
		// Builtin names are unique, Register cannot fail here.
		_ = r.Register(name, fn)
	}
	return r
}

// Register adds a skill. Returns error if name already registered.
func (r *Registry) Register(name string, fn domain.SkillFunc) error {
	if name == "" || fn == nil {
		return domain.NewSubSystemError("skill", "Registry.Register", domain.ErrInvalidInput,
			fmt.Sprintf("skill %q needs a name and a function", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[name]; exists {
		return domain.NewSubSystemError("skill", "Registry.Register", domain.ErrDuplicate, name)
	}
	r.skills[name] = fn
	r.logger.Debug("skill registered", "skill", name)
	return nil
}

// Get retrieves a skill by name.
func (r *Registry) Get(name string) (domain.SkillFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.skills[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrSkillNotFound, name)
	}
	return fn, nil
}

// Subset returns the named skills as a map suitable for domain.NewAgent.
func (r *Registry) Subset(names []string) (map[string]domain.SkillFunc, error) {
	out := make(map[string]domain.SkillFunc, len(names))
	for _, name := range names {
		fn, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out[name] = fn
	}
	return out, nil
}

// List returns registered skill names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
