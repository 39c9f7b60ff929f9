package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Wrap them with NewSubSystemError when a subsystem-specific
// code is needed.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	// ErrConfiguration reports missing or invalid credentials and settings.
	// It is fatal at startup.
	ErrConfiguration = fmt.Errorf("configuration error")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrDecryption    = fmt.Errorf("decryption failed")
	ErrEncryption    = fmt.Errorf("encryption operation failed")

	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrSkillNotFound    = fmt.Errorf("skill not found")
	ErrSessionNotFound  = fmt.Errorf("session not found")

	// ErrUnresolvedArgument marks a fast path that could not fill its argument
	// from the message. The turn falls through to the provider.
	ErrUnresolvedArgument = fmt.Errorf("fast-path argument unresolved")

	// ErrSessionBusy is returned when a message arrives while the previous
	// reply is still streaming.
	ErrSessionBusy = fmt.Errorf("session is busy")

	// Gateway errors.
	ErrFrameInvalid = fmt.Errorf("frame payload invalid")

	// Resilience errors.
	ErrContextOverflow   = fmt.Errorf("context window exceeded")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrStreamInterrupted = fmt.Errorf("stream interrupted")
	ErrCircuitOpen       = fmt.Errorf("circuit breaker open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Dispatcher.Handle")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and for
// the gateway's error frames.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeConfiguration     ErrorCode = "CONFIGURATION"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeEncryption        ErrorCode = "ENCRYPTION"
	CodeProviderNotFound  ErrorCode = "PROVIDER_NOT_FOUND"
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeSkillNotFound     ErrorCode = "SKILL_NOT_FOUND"
	CodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	CodeUnresolvedArg     ErrorCode = "UNRESOLVED_ARGUMENT"
	CodeSessionBusy       ErrorCode = "SESSION_BUSY"
	CodeFrameInvalid      ErrorCode = "FRAME_INVALID"
	CodeContextOverflow   ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeStreamInterrupted ErrorCode = "STREAM_INTERRUPTED"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeAgentDuplicate ErrorCode = "AGENT_DUPLICATE"
	CodeSkillDuplicate ErrorCode = "SKILL_DUPLICATE"
	CodeRouteInvalid   ErrorCode = "ROUTE_INVALID"
	CodeCatalogInvalid ErrorCode = "CATALOG_INVALID"

	// Category codes, used when no subsystem-specific code matches.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,

	ErrConfiguration:      CodeConfiguration,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrEncryption:         CodeEncryption,
	ErrProviderNotFound:   CodeProviderNotFound,
	ErrAgentNotFound:      CodeAgentNotFound,
	ErrSkillNotFound:      CodeSkillNotFound,
	ErrSessionNotFound:    CodeSessionNotFound,
	ErrUnresolvedArgument: CodeUnresolvedArg,
	ErrSessionBusy:        CodeSessionBusy,
	ErrFrameInvalid:       CodeFrameInvalid,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrStreamInterrupted:  CodeStreamInterrupted,
	ErrCircuitOpen:        CodeCircuitOpen,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific codes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent": CodeAgentNotFound,
		"skill": CodeSkillNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
		"skill": CodeSkillDuplicate,
	},
	ErrInvalidInput: {
		"routing": CodeRouteInvalid,
		"catalog": CodeCatalogInvalid,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	// Specific sentinels first so wrapped category errors don't shadow them.
	for _, sentinel := range specificSentinels {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	for _, sentinel := range categorySentinels {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

var categorySentinels = []error{ErrNotFound, ErrDuplicate, ErrTimeout, ErrInvalidInput, ErrProviderError}

var specificSentinels = []error{
	ErrConfiguration, ErrConfigLoad, ErrDecryption, ErrEncryption,
	ErrProviderNotFound, ErrAgentNotFound, ErrSkillNotFound, ErrSessionNotFound,
	ErrUnresolvedArgument, ErrSessionBusy, ErrFrameInvalid,
	ErrContextOverflow, ErrRateLimit, ErrAuthInvalid, ErrStreamInterrupted, ErrCircuitOpen,
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
