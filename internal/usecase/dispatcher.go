package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/tracer"
)

// Retry constants for provider calls.
const (
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// Defaults for transcript notes.
const (
	DefaultHandoffNote = "🔄 **Switching to `{agent}`** to help you better."
	errorTurnPrefix    = "❌ Something went wrong: "
)

// DispatcherDeps holds injected dependencies for the dispatcher.
type DispatcherDeps struct {
	LLM    domain.LLMProvider
	Router domain.AgentRouter
	Bus    domain.EventBus // optional, nil = no events
	Logger *slog.Logger    // optional, nil = discard

	// HandoffNote is the system-note template written on a handoff;
	// "{agent}" is replaced with the new agent's name.
	HandoffNote string
	// CallTimeout bounds one complete (non-streamed) provider call.
	// Zero means no timeout beyond the caller's context.
	CallTimeout time.Duration
	// MaxRetries is the number of extra attempts for retryable provider
	// errors (rate limits, timeouts). Streams are never retried.
	MaxRetries int
}

// Dispatcher runs one conversation turn: it routes the message, records
// handoffs, answers fast paths directly and otherwise invokes the provider
// through the active agent.
type Dispatcher struct {
	deps DispatcherDeps
}

// NewDispatcher creates a dispatcher with the given dependencies.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.HandoffNote == "" {
		deps.HandoffNote = DefaultHandoffNote
	}
	if deps.MaxRetries < 0 {
		deps.MaxRetries = 0
	}
	return &Dispatcher{deps: deps}
}

// Response is the outcome of one Handle call. Exactly one of Text and
// Stream carries the reply.
type Response struct {
	SessionID string
	// Agent is the agent that answered the turn.
	Agent    string
	Decision domain.DecisionKind
	// Handoff is set when the active agent changed during this turn, and
	// Note holds the system-note text that recorded it.
	Handoff *domain.HandoffPayload
	Note    string
	// FastPath is true when skill output answered the turn.
	FastPath bool
	// Text is the complete reply, or the error turn's content when Err is set.
	Text string
	// Err is the provider failure turned into an error turn, if any.
	Err    error
	Stream *Stream
}

// IsStream reports whether the reply is delivered as fragments.
func (r *Response) IsStream() bool { return r.Stream != nil }

// Content returns the full reply text, draining the stream if there is one.
func (r *Response) Content() string {
	if r.Stream != nil {
		return r.Stream.Collect()
	}
	return r.Text
}

// Handle processes one user message for session s.
//
// Provider failures never surface as errors: they become a single assistant
// error turn, the active agent stays as it was, and the session remains
// usable. Handle returns an error only when the session is still busy with
// a previous reply.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, message string) (*Response, error) {
	if !s.tryAcquire() {
		return nil, domain.NewDomainError("Dispatcher.Handle", domain.ErrSessionBusy, s.ID)
	}
	handedToStream := false
	defer func() {
		if !handedToStream {
			s.release()
		}
	}()

	current := s.ActiveAgent()
	ctx, span := tracer.StartSpan(ctx, "dispatcher.handle",
		trace.WithAttributes(
			tracer.StringAttr("session.id", s.ID),
			tracer.StringAttr("agent.current", current.Name()),
		))
	defer span.End()

	s.appendTurn(domain.Turn{Role: domain.TurnUser, Content: message, Agent: current.Name()})
	d.publish(ctx, domain.EventMessageReceived, s.ID, map[string]string{"agent": current.Name()})

	decision := d.deps.Router.Decide(current, message, s.Transcript())
	span.SetAttributes(tracer.StringAttr("route.decision", decision.Kind.String()))

	resp := &Response{SessionID: s.ID, Decision: decision.Kind}
	agent := current
	if decision.Kind == domain.DecisionHandoff && decision.Agent != nil && decision.Agent.Name() != current.Name() {
		agent = decision.Agent
		resp.Handoff, resp.Note = d.handoff(ctx, s, current, agent, decision.Route)
	}
	resp.Agent = agent.Name()

	if decision.Fallthrough != nil {
		d.deps.Logger.Debug("fast path fell through to provider",
			"session_id", s.ID, "agent", agent.Name(), "route", decision.Route, "reason", decision.Fallthrough)
		span.AddEvent("fastpath.fallthrough")
	}

	if fp := decision.FastPath; fp != nil {
		s.appendTurn(domain.Turn{Role: domain.TurnAssistant, Content: fp.Answer, Agent: agent.Name()})
		d.publish(ctx, domain.EventFastPath, s.ID, domain.FastPathPayload{
			Agent: agent.Name(), Route: fp.Route, Skills: fp.Skills, Argument: fp.Argument,
		})
		d.publish(ctx, domain.EventMessageSent, s.ID, map[string]string{"agent": agent.Name()})
		resp.FastPath = true
		resp.Text = fp.Answer
		tracer.SetOK(span)
		return resp, nil
	}

	req := buildRequest(agent, s.Transcript(), s.Config())

	if sp, ok := d.deps.LLM.(domain.StreamingLLMProvider); ok && s.Config().Stream {
		stream, err := d.openStream(ctx, s, agent, sp, req)
		if err != nil {
			d.recordFailure(ctx, s, agent, resp, err, "")
			tracer.RecordError(span, err)
			return resp, nil
		}
		resp.Stream = stream
		handedToStream = true
		tracer.SetOK(span)
		return resp, nil
	}

	reply, err := d.callWithRetry(ctx, s.ID, req)
	if err != nil {
		d.recordFailure(ctx, s, agent, resp, err, "")
		tracer.RecordError(span, err)
		return resp, nil
	}
	s.appendTurn(domain.Turn{Role: domain.TurnAssistant, Content: reply, Agent: agent.Name()})
	d.publish(ctx, domain.EventMessageSent, s.ID, map[string]string{"agent": agent.Name()})
	resp.Text = reply
	tracer.SetOK(span)
	return resp, nil
}

// handoff publishes the transition, records it as a system note and
// switches the active agent, in that order.
func (d *Dispatcher) handoff(ctx context.Context, s *Session, from, to *domain.Agent, route string) (*domain.HandoffPayload, string) {
	note := strings.ReplaceAll(d.deps.HandoffNote, "{agent}", to.Name())
	payload := &domain.HandoffPayload{From: from.Name(), To: to.Name(), Route: route, Note: note}
	d.publish(ctx, domain.EventAgentHandoff, s.ID, payload)

	s.appendTurn(domain.Turn{Role: domain.TurnSystemNote, Content: note, Agent: to.Name()})
	s.switchAgent(to)

	d.deps.Logger.Info("agent handoff", "session_id", s.ID, "from", from.Name(), "to", to.Name(), "route", route)
	return payload, note
}

// recordFailure appends the error turn for a failed provider call.
func (d *Dispatcher) recordFailure(ctx context.Context, s *Session, agent *domain.Agent, resp *Response, err error, partial string) domain.Turn {
	content := errorTurnPrefix + err.Error()
	if partial != "" {
		content = partial + "\n\n" + content
	}
	turn := s.appendTurn(domain.Turn{
		Role:       domain.TurnAssistant,
		Content:    content,
		Agent:      agent.Name(),
		Error:      true,
		Incomplete: partial != "",
	})

	d.deps.Logger.Warn("provider call failed", "session_id", s.ID, "agent", agent.Name(), "error", err)
	d.publish(ctx, domain.EventAgentError, s.ID, domain.AgentErrorPayload{
		Agent: agent.Name(), Code: ClassifyError(err).Code(), Error: err.Error(),
	})
	if resp != nil {
		resp.Err = err
		resp.Text = content
	}
	return turn
}

func (d *Dispatcher) openStream(ctx context.Context, s *Session, agent *domain.Agent, sp domain.StreamingLLMProvider, req domain.ChatRequest) (*Stream, error) {
	req.Stream = true
	streamCtx, cancel := context.WithCancel(ctx)
	spanCtx, span := tracer.StartSpan(streamCtx, "dispatcher.llm_stream",
		trace.WithAttributes(tracer.StringAttr("agent", agent.Name())))

	d.publish(ctx, domain.EventLLMCallStarted, s.ID, map[string]string{"agent": agent.Name(), "mode": "stream"})
	deltas, err := sp.ChatStream(spanCtx, req)
	if err != nil {
		cancel()
		tracer.RecordError(span, err)
		span.End()
		d.publish(ctx, domain.EventStreamError, s.ID, domain.StreamErrorPayload{Agent: agent.Name(), Error: err.Error()})
		return nil, err
	}
	d.publish(ctx, domain.EventStreamStarted, s.ID, domain.StreamStartedPayload{Agent: agent.Name()})

	// Events after the stream is final must not depend on the caller's
	// context, which may be the thing that cancelled it.
	eventCtx := context.WithoutCancel(ctx)
	finalize := func(out streamOutcome) domain.Turn {
		defer s.release()
		defer span.End()

		var turn domain.Turn
		if out.err != nil {
			turn = d.recordFailure(eventCtx, s, agent, nil, out.err, out.content)
			tracer.RecordError(span, out.err)
			d.publish(eventCtx, domain.EventStreamError, s.ID, domain.StreamErrorPayload{Agent: agent.Name(), Error: out.err.Error()})
			return turn
		}

		turn = s.appendTurn(domain.Turn{
			Role:       domain.TurnAssistant,
			Content:    out.content,
			Agent:      agent.Name(),
			Incomplete: out.incomplete,
		})
		span.SetAttributes(tracer.BoolAttr("stream.incomplete", out.incomplete))
		tracer.SetOK(span)
		if out.incomplete {
			d.deps.Logger.Info("stream abandoned", "session_id", s.ID, "agent", agent.Name(), "chars", len(out.content))
		}
		d.publish(eventCtx, domain.EventLLMCallCompleted, s.ID, map[string]string{"agent": agent.Name(), "mode": "stream"})
		d.publish(eventCtx, domain.EventStreamCompleted, s.ID, domain.StreamCompletedPayload{
			Agent: agent.Name(), Content: out.content, Incomplete: out.incomplete, Usage: out.usage,
		})
		d.publish(eventCtx, domain.EventMessageSent, s.ID, map[string]string{"agent": agent.Name()})
		return turn
	}
	return newStream(streamCtx, cancel, deltas, finalize), nil
}

// callWithRetry performs a complete provider call, retrying transient
// failures with exponential backoff.
func (d *Dispatcher) callWithRetry(ctx context.Context, sessionID string, req domain.ChatRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= d.deps.MaxRetries; attempt++ {
		reply, err := d.call(ctx, sessionID, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if !ClassifyError(err).Retryable() || attempt == d.deps.MaxRetries {
			break
		}
		delay := retryBackoff(attempt)
		d.deps.Logger.Info("retrying provider call after error",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (d *Dispatcher) call(ctx context.Context, sessionID string, req domain.ChatRequest) (string, error) {
	if d.deps.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.deps.CallTimeout)
		defer cancel()
	}

	llmCtx, span := tracer.StartSpan(ctx, "dispatcher.llm_call",
		trace.WithAttributes(tracer.StringAttr("llm.provider", d.deps.LLM.Name())))
	defer span.End()

	d.publish(ctx, domain.EventLLMCallStarted, sessionID, map[string]string{"mode": "complete"})
	resp, err := d.deps.LLM.Chat(llmCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.WrapOp("Dispatcher.call", errors.Join(domain.ErrTimeout, err))
		}
		tracer.RecordError(span, err)
		return "", err
	}
	if resp == nil {
		err := domain.NewDomainError("Dispatcher.call", domain.ErrProviderError, "empty response")
		tracer.RecordError(span, err)
		return "", err
	}
	tracer.SetOK(span)
	d.publish(ctx, domain.EventLLMCallCompleted, sessionID, domain.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	})
	return resp.Message.Content, nil
}

// buildRequest replays the agent's instructions and the transcript. Error
// turns are not replayed; they describe our failure, not the conversation.
func buildRequest(agent *domain.Agent, turns []domain.Turn, cfg RunConfig) domain.ChatRequest {
	msgs := make([]domain.Message, 0, len(turns)+1)
	if instr := agent.Instructions(); instr != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: instr, Name: agent.Name()})
	}
	for _, t := range turns {
		if t.Error {
			continue
		}
		m := domain.Message{Content: t.Content, Timestamp: t.Timestamp}
		switch t.Role {
		case domain.TurnUser:
			m.Role = domain.RoleUser
		case domain.TurnAssistant:
			m.Role = domain.RoleAssistant
		case domain.TurnSystemNote:
			m.Role = domain.RoleSystem
		default:
			continue
		}
		msgs = append(msgs, m)
	}
	return domain.ChatRequest{
		Model:       cfg.Model,
		Messages:    msgs,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func (d *Dispatcher) publish(ctx context.Context, eventType domain.EventType, sessionID string, payload any) {
	publishEvent(d.deps.Bus, ctx, eventType, sessionID, payload)
}

// publishEvent publishes a domain event on the bus if one is configured.
func publishEvent(bus domain.EventBus, ctx context.Context, eventType domain.EventType, sessionID string, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload:   raw,
	})
}
