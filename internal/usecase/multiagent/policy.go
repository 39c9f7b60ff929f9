package multiagent

import (
	"fmt"
	"slices"
	"strings"

	"relay-ai/internal/domain"
)

// AnyAgent is the policy key for routes evaluated for every agent after
// the agent's own routes.
const AnyAgent = "*"

// RouteKind says what a matched route does.
type RouteKind string

const (
	RouteHandoff  RouteKind = "handoff"
	RouteFastPath RouteKind = "fastpath"
)

// Template placeholders for fast-path answers.
const (
	PlaceholderArgument = "{argument}"
	PlaceholderResults  = "{results}"
)

// Route maps a keyword set to a handoff target or a fast-path skill bundle.
// Keywords are matched as lowercase substrings of the message, so a keyword
// may contain spaces.
type Route struct {
	Name     string    `yaml:"name"`
	Kind     RouteKind `yaml:"kind"`
	Keywords []string  `yaml:"keywords"`
	// Priority orders routes of one agent; lower runs first. Equal
	// priorities keep declaration order.
	Priority int `yaml:"priority,omitempty"`

	// Target is the agent a handoff route switches to.
	Target string `yaml:"target,omitempty"`

	// Skills are invoked in order with the extracted argument.
	Skills []string `yaml:"skills,omitempty"`
	// Vocabulary is scanned in order for the first term contained in the
	// message; the term as declared becomes the skill argument.
	Vocabulary []string `yaml:"vocabulary,omitempty"`
	// Template renders the answer. Defaults to "{results}", which joins the
	// skill outputs with blank lines.
	Template string `yaml:"template,omitempty"`
}

func (r Route) validate() error {
	if r.Name == "" {
		return fmt.Errorf("route name is required")
	}
	if len(r.Keywords) == 0 {
		return fmt.Errorf("route %s: at least one keyword is required", r.Name)
	}
	for _, kw := range r.Keywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("route %s: empty keyword", r.Name)
		}
	}
	switch r.Kind {
	case RouteHandoff:
		if r.Target == "" {
			return fmt.Errorf("route %s: handoff needs a target", r.Name)
		}
	case RouteFastPath:
		if len(r.Skills) == 0 {
			return fmt.Errorf("route %s: fastpath needs skills", r.Name)
		}
		if len(r.Vocabulary) == 0 {
			return fmt.Errorf("route %s: fastpath needs a vocabulary", r.Name)
		}
	default:
		return fmt.Errorf("route %s: unknown kind %q", r.Name, r.Kind)
	}
	return nil
}

// matches reports whether the lowercased message contains any keyword.
func (r Route) matches(lowered string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// extract returns the first vocabulary term contained in the lowercased message.
func (r Route) extract(lowered string) (string, bool) {
	for _, term := range r.Vocabulary {
		if strings.Contains(lowered, strings.ToLower(term)) {
			return term, true
		}
	}
	return "", false
}

func (r Route) render(argument string, results []string) string {
	tmpl := r.Template
	if tmpl == "" {
		tmpl = PlaceholderResults
	}
	return strings.NewReplacer(
		PlaceholderArgument, argument,
		PlaceholderResults, strings.Join(results, "\n\n"),
	).Replace(tmpl)
}

// Policy is the routing table: per-agent ordered routes plus routes shared
// by every agent under AnyAgent.
type Policy struct {
	routes map[string][]Route
}

// NewPolicy validates the routes and orders each agent's list by priority.
func NewPolicy(routes map[string][]Route) (*Policy, error) {
	p := &Policy{routes: make(map[string][]Route, len(routes))}
	for agent, list := range routes {
		for _, r := range list {
			if err := r.validate(); err != nil {
				return nil, domain.NewSubSystemError("routing", "NewPolicy", domain.ErrInvalidInput, agent+": "+err.Error())
			}
		}
		sorted := slices.Clone(list)
		slices.SortStableFunc(sorted, func(a, b Route) int { return a.Priority - b.Priority })
		p.routes[agent] = sorted
	}
	return p, nil
}

// For returns the routes evaluated for agent: its own routes, then the
// shared ones.
func (p *Policy) For(agent string) []Route {
	own := p.routes[agent]
	shared := p.routes[AnyAgent]
	out := make([]Route, 0, len(own)+len(shared))
	out = append(out, own...)
	return append(out, shared...)
}

// Agents returns the agent keys the policy declares routes for.
func (p *Policy) Agents() []string {
	keys := make([]string, 0, len(p.routes))
	for k := range p.routes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
