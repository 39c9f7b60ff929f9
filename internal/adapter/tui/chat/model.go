package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"relay-ai/internal/adapter/tui/theme"
	"relay-ai/internal/adapter/tui/uxerror"
	"relay-ai/internal/domain"
	"relay-ai/internal/usecase"
)

// Deps are the dependencies injected into the chat model.
type Deps struct {
	Dispatcher *usecase.Dispatcher
	Sessions   *usecase.SessionManager
	Start      *domain.Agent
	RunConfig  usecase.RunConfig
	Catalog    string
	Agents     []string
	Welcome    string
	Logger     *slog.Logger
	// GlamourStyle names a glamour standard style. Empty detects the
	// terminal background.
	GlamourStyle string
}

type entryKind int

const (
	entryUser entryKind = iota
	entryAgent
	entryNote
	entryError
	entryInfo
)

type entry struct {
	kind       entryKind
	agent      string
	text       string
	hint       string
	fastPath   bool
	incomplete bool
}

// Model is the root Bubble Tea model for the terminal chat.
type Model struct {
	deps Deps
	ctx  context.Context

	session *usecase.Session
	gen     uint64

	input    textinput.Model
	view     viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries   []entry
	streaming int // index of the entry receiving fragments, or -1
	waiting   bool
	turnCtx   context.Context
	cancel    context.CancelFunc
	fragments <-chan string
	stream    *usecase.Stream

	width    int
	height   int
	ready    bool
	quitting bool
}

// NewModel opens a session on deps.Start and returns the model driving it.
// ctx bounds every turn the model starts.
func NewModel(ctx context.Context, deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	ti := textinput.New()
	ti.Placeholder = "Type a message, /help for commands"
	ti.Prompt = theme.InputPrompt.Render("> ")
	ti.PlaceholderStyle = theme.InputPlaceholder
	ti.CharLimit = 4000
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	m := Model{
		deps:      deps,
		ctx:       ctx,
		input:     ti,
		spinner:   s,
		streaming: -1,
	}
	m.openSession()
	return m
}

func (m *Model) openSession() {
	m.session = m.deps.Sessions.Create(m.ctx, m.deps.Start, m.deps.RunConfig)
	m.entries = nil
	if m.deps.Welcome != "" {
		m.entries = append(m.entries, entry{kind: entryAgent, agent: m.deps.Start.Name(), text: m.deps.Welcome})
	}
}

// SessionID returns the current session's identifier.
func (m Model) SessionID() string { return m.session.ID }

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TurnStartedMsg:
		if msg.Gen != m.gen {
			if msg.Resp != nil && msg.Resp.Stream != nil {
				msg.Resp.Stream.Close()
			}
			return m, nil
		}
		return m.turnStarted(msg)

	case FragmentMsg:
		if msg.Gen != m.gen || m.streaming < 0 {
			return m, nil
		}
		m.entries[m.streaming].text += msg.Text
		m.refresh()
		return m, waitFragment(m.fragments, m.stream, m.gen)

	case StreamDoneMsg:
		if msg.Gen != m.gen || m.streaming < 0 {
			return m, nil
		}
		e := &m.entries[m.streaming]
		e.text = msg.Turn.Content
		e.incomplete = msg.Turn.Incomplete
		if msg.Turn.Error {
			e.kind = entryError
			e.hint = uxerror.Humanize(msg.Err).Render()
		}
		m.finishTurn()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.cancelTurn()
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		m.cancelTurn()
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		if strings.HasPrefix(text, "/") {
			return m.runCommand(text)
		}
		return m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	m.entries = append(m.entries, entry{kind: entryUser, text: text})
	if m.waiting {
		m.appendError("", domain.ErrSessionBusy)
		m.refresh()
		return m, nil
	}

	m.turnCtx, m.cancel = context.WithCancel(m.ctx)
	m.waiting = true
	m.refresh()
	return m, tea.Batch(
		handleCmd(m.turnCtx, m.deps.Dispatcher, m.session, text, m.gen),
		m.spinner.Tick,
	)
}

func (m Model) turnStarted(msg TurnStartedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.appendError("", msg.Err)
		m.finishTurn()
		return m, nil
	}

	resp := msg.Resp
	if resp.Handoff != nil {
		m.entries = append(m.entries, entry{kind: entryNote, agent: resp.Handoff.To, text: resp.Note})
	}

	if resp.IsStream() {
		m.entries = append(m.entries, entry{kind: entryAgent, agent: resp.Agent})
		m.streaming = len(m.entries) - 1
		m.stream = resp.Stream
		m.fragments = pump(m.turnCtx, resp.Stream)
		m.refresh()
		return m, waitFragment(m.fragments, m.stream, m.gen)
	}

	e := entry{kind: entryAgent, agent: resp.Agent, text: resp.Text, fastPath: resp.FastPath}
	if resp.Err != nil {
		e.kind = entryError
		e.hint = uxerror.Humanize(resp.Err).Render()
	}
	m.entries = append(m.entries, e)
	m.finishTurn()
	return m, nil
}

func (m *Model) finishTurn() {
	m.cancelTurn()
	m.resetTurn()
	m.refresh()
}

func (m *Model) resetTurn() {
	m.turnCtx, m.cancel = nil, nil
	m.waiting = false
	m.streaming = -1
	m.stream = nil
	m.fragments = nil
}

// cancelTurn abandons the reply in progress. The turn still completes
// through the usual messages, marked incomplete.
func (m *Model) cancelTurn() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m Model) runCommand(text string) (tea.Model, tea.Cmd) {
	switch strings.Fields(text)[0] {
	case "/quit", "/exit":
		m.cancelTurn()
		m.quitting = true
		return m, tea.Quit
	case "/help":
		m.appendInfo(helpText())
	case "/agent":
		m.appendInfo("Active agent: " + m.session.ActiveAgent().Name())
	case "/agents":
		m.appendInfo("Agents: " + strings.Join(m.deps.Agents, ", "))
	case "/cancel":
		if !m.waiting {
			m.appendInfo("Nothing to cancel.")
		}
		m.cancelTurn()
	case "/new":
		m.cancelTurn()
		if err := m.deps.Sessions.Close(context.WithoutCancel(m.ctx), m.session.ID); err != nil {
			m.deps.Logger.Warn("close session", "session_id", m.session.ID, "error", err)
		}
		m.gen++
		m.resetTurn()
		m.openSession()
		m.appendInfo("Started a new session.")
	default:
		m.appendInfo(fmt.Sprintf("Unknown command %s. Type /help for commands.", text))
	}
	m.refresh()
	return m, nil
}

func (m *Model) appendError(agent string, err error) {
	fe := uxerror.Humanize(err)
	m.entries = append(m.entries, entry{kind: entryError, agent: agent, text: fe.Title, hint: fe.Render()})
}

func (m *Model) appendInfo(text string) {
	m.entries = append(m.entries, entry{kind: entryInfo, text: text})
}

func (m *Model) layout() {
	statusHeight, inputHeight := 1, 3
	vh := max(m.height-statusHeight-inputHeight, 1)
	if !m.ready {
		m.view = viewport.New(m.width, vh)
		m.ready = true
	} else {
		m.view.Width = m.width
		m.view.Height = vh
	}
	m.input.Width = max(m.width-6, 10)

	wrap := min(max(m.width-4, 20), theme.MaxContentWidth)
	style := glamour.WithAutoStyle()
	if m.deps.GlamourStyle != "" {
		style = glamour.WithStandardStyle(m.deps.GlamourStyle)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(wrap))
	if err != nil {
		m.deps.Logger.Debug("markdown renderer unavailable", "error", err)
		r = nil
	}
	m.renderer = r
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(m.renderTranscript())
	m.view.GotoBottom()
}

func (m Model) renderTranscript() string {
	parts := make([]string, 0, len(m.entries))
	for i, e := range m.entries {
		parts = append(parts, m.renderEntry(e, i == m.streaming))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderEntry(e entry, live bool) string {
	switch e.kind {
	case entryUser:
		return theme.UserLabel.Render(theme.SymbolUser) + "  " + e.text

	case entryNote:
		return theme.Handoff.Render(m.markdown(theme.SymbolHandoff + " " + e.text))

	case entryError:
		label := theme.ErrorLabel.Render(theme.SymbolError + " " + labelOr(e.agent, "error"))
		out := label + "\n" + e.text
		if e.hint != "" {
			out += "\n" + theme.TextMuted.Render(e.hint)
		}
		return out

	case entryInfo:
		return theme.TextMuted.Render(e.text)
	}

	label := theme.AgentLabel.Render(e.agent)
	if e.fastPath {
		label += " " + theme.FastPathTag.Render("fast path")
	}
	body := e.text
	if !live {
		// Fragments are shown raw while streaming and rendered once whole.
		body = m.markdown(body)
	} else {
		body += m.spinner.View()
	}
	if e.incomplete {
		body += "\n" + theme.TextWarning.Render(theme.SymbolWarning+" incomplete")
	}
	return label + "\n" + body
}

func (m Model) markdown(s string) string {
	if m.renderer == nil || s == "" {
		return s
	}
	out, err := m.renderer.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

func labelOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// View renders the status bar, transcript and input line.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting" + theme.SymbolEllipsis
	}

	status := theme.StatusBar.Width(m.width).Render(fmt.Sprintf("%s %s  %s %s  %s %s",
		theme.StatusKey.Render("catalog"), m.deps.Catalog,
		theme.StatusKey.Render("agent"), m.session.ActiveAgent().Name(),
		theme.StatusKey.Render("session"), shortID(m.session.ID),
	))

	input := m.input.View()
	if m.waiting {
		input = m.spinner.View() + " " + input
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		status,
		m.view.View(),
		theme.InputBorder.Width(max(m.width-2, 10)).Render(input),
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
