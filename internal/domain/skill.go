package domain

// SkillFunc is a deterministic, side-effect-free function from a free-text
// argument to an answer. It must be total: arguments outside its domain yield
// a "not found" answer, never a panic.
type SkillFunc func(arg string) string

// SkillProvider exposes a set of named skills.
type SkillProvider interface {
	Get(name string) (SkillFunc, error)
	// Subset resolves names in one call, failing on the first unknown one.
	Subset(names []string) (map[string]SkillFunc, error)
	List() []string
}
