package domain

import (
	"maps"
	"slices"
	"strings"
)

// Agent is a named behavior profile: instructions, the skills it may answer
// with directly, and the agents it may hand a conversation to. An Agent is
// immutable once built.
//
// Handoff targets are held by name so agents may reference each other in
// cycles; a catalog resolves the names.
type Agent struct {
	name         string
	instructions string
	skills       map[string]SkillFunc
	handoffs     []string
}

// NewAgent builds an Agent, copying skills and handoff targets so later
// changes to the arguments do not leak in.
func NewAgent(name, instructions string, skills map[string]SkillFunc, handoffs []string) (*Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewDomainError("NewAgent", ErrInvalidInput, "agent name is required")
	}
	for skillName, fn := range skills {
		if fn == nil {
			return nil, NewDomainError("NewAgent", ErrInvalidInput, "skill "+skillName+" has no function")
		}
	}
	var targets []string
	for _, h := range handoffs {
		if h == name {
			return nil, NewDomainError("NewAgent", ErrInvalidInput, "agent "+name+" cannot hand off to itself")
		}
		if !slices.Contains(targets, h) {
			targets = append(targets, h)
		}
	}
	return &Agent{
		name:         name,
		instructions: instructions,
		skills:       maps.Clone(skills),
		handoffs:     targets,
	}, nil
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.name }

// Instructions returns the system prompt replayed to the provider.
func (a *Agent) Instructions() string { return a.instructions }

// Skill returns the named skill if the agent owns it.
func (a *Agent) Skill(name string) (SkillFunc, bool) {
	fn, ok := a.skills[name]
	return fn, ok
}

// SkillNames returns the agent's skill names in sorted order.
func (a *Agent) SkillNames() []string {
	return slices.Sorted(maps.Keys(a.skills))
}

// HandoffTargets returns the declared handoff target names in declaration order.
func (a *Agent) HandoffTargets() []string {
	return slices.Clone(a.handoffs)
}

// CanHandoffTo reports whether target is a declared handoff target.
func (a *Agent) CanHandoffTo(target string) bool {
	return slices.Contains(a.handoffs, target)
}
