package multiagent

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"relay-ai/internal/domain"
)

// discardLogger returns a no-op logger for routers created without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// KeywordRouter routes messages with a keyword Policy. The first matching
// route of the current agent wins. A handoff route then gives the target's
// own fast-path routes a chance to answer the same message.
type KeywordRouter struct {
	registry *Registry
	policy   *Policy
	logger   *slog.Logger
}

// NewKeywordRouter checks the policy against the registry: every route must
// belong to a registered agent, handoff targets must be declared on the
// agent, and fast-path skills must be owned by it.
func NewKeywordRouter(registry *Registry, policy *Policy, logger *slog.Logger) (*KeywordRouter, error) {
	if logger == nil {
		logger = discardLogger()
	}
	r := &KeywordRouter{registry: registry, policy: policy, logger: logger}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *KeywordRouter) validate() error {
	invalid := func(format string, args ...any) error {
		return domain.NewSubSystemError("routing", "NewKeywordRouter", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
	}

	names := r.registry.Names()
	for _, key := range r.policy.Agents() {
		if key != AnyAgent && !slices.Contains(names, key) {
			return invalid("routes declared for unknown agent %s", key)
		}
	}
	for _, name := range names {
		agent, err := r.registry.Get(name)
		if err != nil {
			return err
		}
		for _, route := range r.policy.For(name) {
			switch route.Kind {
			case RouteHandoff:
				if _, err := r.registry.Get(route.Target); err != nil {
					return invalid("route %s targets unknown agent %s", route.Name, route.Target)
				}
				if route.Target != name && !agent.CanHandoffTo(route.Target) {
					return invalid("%s cannot hand off to %s (route %s)", name, route.Target, route.Name)
				}
			case RouteFastPath:
				for _, s := range route.Skills {
					if _, ok := agent.Skill(s); !ok {
						return invalid("%s does not own skill %s (route %s)", name, s, route.Name)
					}
				}
			}
		}
	}
	return nil
}

// Decide implements domain.AgentRouter.
func (r *KeywordRouter) Decide(current *domain.Agent, message string, _ []domain.Turn) domain.Decision {
	stay := domain.Decision{Kind: domain.DecisionStay, Agent: current}

	lowered := strings.ToLower(strings.TrimSpace(message))
	if lowered == "" {
		r.logger.Debug("empty message, staying", "agent", current.Name())
		return stay
	}

	for _, route := range r.policy.For(current.Name()) {
		if !route.matches(lowered) {
			continue
		}

		switch route.Kind {
		case RouteFastPath:
			fp, err := r.fastPath(current, route, lowered)
			if err != nil {
				r.logger.Debug("fast path abandoned", "agent", current.Name(), "route", route.Name, "error", err)
				stay.Route = route.Name
				stay.Fallthrough = err
				return stay
			}
			r.logger.Debug("fast path matched", "agent", current.Name(), "route", route.Name, "argument", fp.Argument)
			return domain.Decision{Kind: domain.DecisionFastPath, Agent: current, Route: route.Name, FastPath: fp}

		case RouteHandoff:
			target, err := r.registry.Get(route.Target)
			if err != nil {
				r.logger.Warn("handoff target vanished", "route", route.Name, "target", route.Target)
				return stay
			}
			d := domain.Decision{Kind: domain.DecisionHandoff, Agent: target, Route: route.Name}
			if target.Name() == current.Name() {
				d.Kind = domain.DecisionStay
			}
			d.FastPath, d.Fallthrough = r.targetFastPath(target, lowered)
			if d.Kind == domain.DecisionStay && d.FastPath != nil {
				d.Kind = domain.DecisionFastPath
			}
			r.logger.Debug("handoff route matched",
				"from", current.Name(), "to", target.Name(), "route", route.Name,
				"kind", d.Kind.String(), "fast_path", d.FastPath != nil)
			return d
		}
	}

	r.logger.Debug("no route matched, staying", "agent", current.Name())
	return stay
}

// targetFastPath runs the first fast-path route of target whose keywords
// match. It returns nil, nil when none match.
func (r *KeywordRouter) targetFastPath(target *domain.Agent, lowered string) (*domain.FastPathResult, error) {
	for _, route := range r.policy.For(target.Name()) {
		if route.Kind != RouteFastPath || !route.matches(lowered) {
			continue
		}
		return r.fastPath(target, route, lowered)
	}
	return nil, nil
}

func (r *KeywordRouter) fastPath(agent *domain.Agent, route Route, lowered string) (*domain.FastPathResult, error) {
	arg, ok := route.extract(lowered)
	if !ok {
		return nil, domain.NewDomainError("KeywordRouter.Decide", domain.ErrUnresolvedArgument,
			"route "+route.Name+" found no argument in message")
	}

	results := make([]string, 0, len(route.Skills))
	for _, name := range route.Skills {
		fn, ok := agent.Skill(name)
		if !ok {
			return nil, domain.NewDomainError("KeywordRouter.Decide", domain.ErrSkillNotFound, name)
		}
		results = append(results, fn(arg))
	}
	return &domain.FastPathResult{
		Route:    route.Name,
		Skills:   slices.Clone(route.Skills),
		Argument: arg,
		Answer:   route.render(arg, results),
	}, nil
}
