// Package catalog builds agent sets and their routing policies from YAML.
//
// A catalog names its agents, the skills each owns, and the keyword routes
// that move a conversation between them. Two catalogs ship embedded
// ("travel" and "career"); others can be loaded from a file.
package catalog

import (
	"embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"relay-ai/internal/domain"
	"relay-ai/internal/usecase/multiagent"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

const maxCatalogFileSize = 1 << 20

// File is the YAML shape of a catalog.
type File struct {
	Name         string             `yaml:"name"`
	Welcome      string             `yaml:"welcome"`
	HandoffNote  string             `yaml:"handoff_note"`
	DefaultAgent string             `yaml:"default_agent"`
	Agents       []AgentSpec        `yaml:"agents"`
	SharedRoutes []multiagent.Route `yaml:"shared_routes"`
}

// AgentSpec declares one agent.
type AgentSpec struct {
	Name         string             `yaml:"name"`
	Instructions string             `yaml:"instructions"`
	Skills       []string           `yaml:"skills"`
	Handoffs     []string           `yaml:"handoffs"`
	Routes       []multiagent.Route `yaml:"routes"`
}

// Catalog is a validated, ready-to-route agent set. HandoffNote, when set,
// overrides the dispatcher's handoff note template.
type Catalog struct {
	Name        string
	Welcome     string
	HandoffNote string
	Agents      *multiagent.Registry
	Router      *multiagent.KeywordRouter
}

// BuiltinNames lists the embedded catalogs.
func BuiltinNames() []string {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	slices.Sort(names)
	return names
}

// Builtin loads an embedded catalog by name.
func Builtin(name string, skills domain.SkillProvider, logger *slog.Logger) (*Catalog, error) {
	data, err := profileFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, domain.NewDomainError("catalog.Builtin", domain.ErrNotFound,
			fmt.Sprintf("catalog %q (available: %s)", name, strings.Join(BuiltinNames(), ", ")))
	}
	return Parse(data, skills, logger)
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(filePath string, skills domain.SkillProvider, logger *slog.Logger) (*Catalog, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat catalog file %s: %w", filePath, err)
	}
	if info.Size() > maxCatalogFileSize {
		return nil, fmt.Errorf("catalog file %s too large (%d bytes, max %d)", filePath, info.Size(), maxCatalogFileSize)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", filePath, err)
	}
	c, err := Parse(data, skills, logger)
	if err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", filePath, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte, skills domain.SkillProvider, logger *slog.Logger) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.NewSubSystemError("catalog", "catalog.Parse", domain.ErrInvalidInput, err.Error())
	}
	return Build(f, skills, logger)
}

// Build turns a decoded File into a Catalog. An agent's handoff targets are
// its declared handoffs plus every target its routes (and the shared
// routes) can switch to.
func Build(f File, skills domain.SkillProvider, logger *slog.Logger) (*Catalog, error) {
	invalid := func(format string, args ...any) error {
		return domain.NewSubSystemError("catalog", "catalog.Build", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
	}
	if f.Name == "" {
		return nil, invalid("catalog name is required")
	}
	if len(f.Agents) == 0 {
		return nil, invalid("catalog %s declares no agents", f.Name)
	}
	if f.DefaultAgent == "" {
		f.DefaultAgent = f.Agents[0].Name
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("catalog", f.Name)

	registry := multiagent.NewRegistry(f.DefaultAgent, logger)
	routes := map[string][]multiagent.Route{}
	if len(f.SharedRoutes) > 0 {
		routes[multiagent.AnyAgent] = f.SharedRoutes
	}

	for _, spec := range f.Agents {
		owned, err := skills.Subset(spec.Skills)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}

		handoffs := slices.Clone(spec.Handoffs)
		for _, r := range slices.Concat(spec.Routes, f.SharedRoutes) {
			if r.Kind == multiagent.RouteHandoff && r.Target != spec.Name {
				handoffs = append(handoffs, r.Target)
			}
		}

		agent, err := domain.NewAgent(spec.Name, strings.TrimSpace(spec.Instructions), owned, handoffs)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(agent); err != nil {
			return nil, err
		}
		if len(spec.Routes) > 0 {
			routes[agent.Name()] = spec.Routes
		}
	}

	if err := registry.Validate(); err != nil {
		return nil, err
	}
	policy, err := multiagent.NewPolicy(routes)
	if err != nil {
		return nil, err
	}
	router, err := multiagent.NewKeywordRouter(registry, policy, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("catalog loaded", "agents", registry.Names(), "default", f.DefaultAgent)
	return &Catalog{
		Name:        f.Name,
		Welcome:     f.Welcome,
		HandoffNote: f.HandoffNote,
		Agents:      registry,
		Router:      router,
	}, nil
}
