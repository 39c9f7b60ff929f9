package chat

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"relay-ai/internal/adapter/tui/theme"
	"relay-ai/internal/usecase"
)

func handleCmd(ctx context.Context, d *usecase.Dispatcher, s *usecase.Session, text string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		resp, err := d.Handle(ctx, s, text)
		return TurnStartedMsg{Resp: resp, Err: err, Gen: gen}
	}
}

// pump feeds the stream's fragments into a channel the model drains one
// message at a time. It stops early when ctx is cancelled, which
// abandons the stream.
func pump(ctx context.Context, st *usecase.Stream) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for f := range st.Fragments() {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func waitFragment(ch <-chan string, st *usecase.Stream, gen uint64) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return StreamDoneMsg{Turn: st.Turn(), Err: st.Err(), Gen: gen}
		}
		return FragmentMsg{Text: f, Gen: gen}
	}
}

type slashCommand struct {
	name        string
	description string
}

var slashCommands = []slashCommand{
	{"/help", "Show available commands"},
	{"/agent", "Show the active agent"},
	{"/agents", "List the catalog's agents"},
	{"/new", "Start a new session"},
	{"/cancel", "Cancel the reply in progress (also Esc)"},
	{"/quit", "Exit relay"},
}

func helpText() string {
	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, c := range slashCommands {
		fmt.Fprintf(&sb, "\n  %s %-8s %s", theme.SymbolBullet, c.name, c.description)
	}
	return sb.String()
}
