package domain

// DecisionKind is the outcome of routing one message.
type DecisionKind int

const (
	// DecisionStay keeps the current agent and invokes the provider.
	DecisionStay DecisionKind = iota
	// DecisionHandoff switches the active agent before the turn is answered.
	DecisionHandoff
	// DecisionFastPath answers with skill output and skips the provider.
	DecisionFastPath
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionStay:
		return "stay"
	case DecisionHandoff:
		return "handoff"
	case DecisionFastPath:
		return "fastpath"
	default:
		return "unknown"
	}
}

// FastPathResult is a deterministic answer built from skill output.
type FastPathResult struct {
	Route    string   `json:"route"`
	Skills   []string `json:"skills"`
	Argument string   `json:"argument"`
	Answer   string   `json:"answer"`
}

// Decision is what a router returns for one message.
//
// Agent is the agent that answers the turn: the current agent for Stay and
// FastPath, the target for Handoff. A Handoff may also carry a FastPath
// result computed by the target's own routes. Fallthrough is set when a
// fast path matched but its argument could not be resolved; it wraps
// ErrUnresolvedArgument and is informational only.
type Decision struct {
	Kind        DecisionKind
	Agent       *Agent
	Route       string
	FastPath    *FastPathResult
	Fallthrough error
}

// AgentRouter decides which agent handles a message and whether a skill
// can answer it directly. Decide never fails: an unmatched message is Stay.
type AgentRouter interface {
	Decide(current *Agent, message string, history []Turn) Decision
}
