package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"relay-ai/internal/adapter/tui/chat"
	"relay-ai/internal/adapter/tui/theme"
	"relay-ai/internal/adapter/tui/uxerror"
)

// runTUI runs the full-screen chat until the user quits or ctx ends.
func runTUI(ctx context.Context, a *app) error {
	m := chat.NewModel(ctx, chat.Deps{
		Dispatcher: a.dispatcher,
		Sessions:   a.sessions,
		Start:      a.start,
		RunConfig:  a.runConfig(),
		Catalog:    a.catalog.Name,
		Agents:     a.catalog.Agents.Names(),
		Welcome:    a.catalog.Welcome,
		Logger:     a.log,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()

	id := m.SessionID()
	if fm, ok := final.(chat.Model); ok {
		id = fm.SessionID()
	}
	_ = a.sessions.Close(context.WithoutCancel(ctx), id)

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// chatLoop is the line-based chat used when stdin or stdout is not a
// terminal. It reads one message per line until EOF or /quit.
func chatLoop(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	s := a.sessions.Create(ctx, a.start, a.runConfig())
	defer a.sessions.Close(context.WithoutCancel(ctx), s.ID)

	if a.catalog.Welcome != "" {
		fmt.Fprintf(out, "%s: %s\n\n", a.start.Name(), a.catalog.Welcome)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/agent":
			fmt.Fprintf(out, "Active agent: %s\n\n", s.ActiveAgent().Name())
			continue
		case "/agents":
			fmt.Fprintf(out, "Agents: %s\n\n", strings.Join(a.catalog.Agents.Names(), ", "))
			continue
		}

		resp, err := a.dispatcher.Handle(ctx, s, line)
		if err != nil {
			fmt.Fprintf(out, "%s %s\n\n", theme.SymbolError, uxerror.Humanize(err).Title)
			continue
		}
		if resp.Handoff != nil {
			fmt.Fprintf(out, "%s %s\n", theme.SymbolHandoff, resp.Note)
		}

		fmt.Fprintf(out, "%s: ", resp.Agent)
		if !resp.IsStream() {
			fmt.Fprintln(out, resp.Text)
			if resp.Err != nil {
				fmt.Fprintln(out, uxerror.Humanize(resp.Err).Render())
			}
			fmt.Fprintln(out)
			continue
		}

		for f := range resp.Stream.Fragments() {
			fmt.Fprint(out, f)
		}
		turn := resp.Stream.Turn()
		switch {
		case turn.Error:
			fmt.Fprintf(out, "\n%s\n", uxerror.Humanize(resp.Stream.Err()).Render())
		case turn.Incomplete:
			fmt.Fprintf(out, "\n%s incomplete\n", theme.SymbolWarning)
		default:
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out)
	}
}
