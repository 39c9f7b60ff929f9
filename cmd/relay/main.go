package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"relay-ai/internal/adapter/llm"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/logger"
	"relay-ai/internal/infra/tracer"
)

func main() {
	cmd, args := "chat", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	for _, a := range args {
		if a == "--help" || a == "-h" {
			cmd = "help"
		}
	}

	var err error
	switch cmd {
	case "help":
		showUsage()
		return
	case "chat":
		tui := useTUI(parseFlags(args))
		err = run(args, tui, func(ctx context.Context, a *app) error {
			if tui {
				return runTUI(ctx, a)
			}
			return chatLoop(ctx, a, os.Stdin, os.Stdout)
		})
	case "serve":
		err = run(args, false, runServe)
	case "encrypt":
		err = runEncrypt(args, os.Stdin, os.Stdout)
	case "doctor":
		err = runDoctor(parseFlags(args), os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'relay --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`relay - agent-routing chat dispatcher

USAGE:
    relay [COMMAND] [FLAGS]

COMMANDS:
    chat        Chat in the terminal (default)
    serve       Run the WebSocket chat gateway
    encrypt     Encrypt a secret for config.yaml (reads RELAYAI_CONFIG_KEY)
    doctor      Check configuration and provider reachability

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --profile NAME     Builtin catalog: travel, career
    --catalog PATH     Catalog YAML file (overrides --profile)
    --plain            chat: line-based prompt instead of the full-screen UI

CONFIGURATION:
    Config file: ./config.yaml (optional)
    Environment: RELAYAI_* variables override config
    Credentials: GEMINI_API_KEY, RELAYAI_API_KEY or
                 RELAYAI_LLM_PROVIDER_<NAME>_API_KEY

EXAMPLES:
    GEMINI_API_KEY=... relay chat --profile career
    relay serve --config /etc/relay/config.yaml
    RELAYAI_CONFIG_KEY=... relay encrypt sk-secret`)
}

// cliFlags holds flags shared by chat and serve.
type cliFlags struct {
	ConfigPath string
	Profile    string
	Catalog    string
	Plain      bool
}

// parseFlags extracts --config, --profile, --catalog and --plain from args.
func parseFlags(args []string) cliFlags {
	var flags cliFlags
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			flags.ConfigPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--profile" && i+1 < len(args):
			flags.Profile = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--profile="):
			flags.Profile = strings.TrimPrefix(args[i], "--profile=")
		case args[i] == "--catalog" && i+1 < len(args):
			flags.Catalog = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--catalog="):
			flags.Catalog = strings.TrimPrefix(args[i], "--catalog=")
		case args[i] == "--plain":
			flags.Plain = true
		}
	}
	return flags
}

func configPath(flags cliFlags) string {
	if flags.ConfigPath != "" {
		return flags.ConfigPath
	}
	if p := os.Getenv("RELAYAI_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// loadConfig loads the config file (defaults when absent), then applies
// command-line overrides and validates again.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath(flags))
	if err != nil {
		return nil, err
	}
	if flags.Profile == "" && flags.Catalog == "" {
		return cfg, nil
	}
	if flags.Profile != "" {
		cfg.Profile = flags.Profile
		cfg.CatalogFile = ""
	}
	if flags.Catalog != "" {
		cfg.CatalogFile = flags.Catalog
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run performs the startup shared by chat and serve, then hands the wired
// application to fn. When ownsTerminal is set, console log output is
// dropped so it cannot tear the full-screen UI; file output still works.
func run(args []string, ownsTerminal bool, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(parseFlags(args))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := newLogger(cfg.Logger, ownsTerminal)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerShutdown(shutdownCtx)
	}()

	provider, err := llm.Build(cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	a, err := newApp(cfg, provider, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("relay starting",
		"catalog", a.catalog.Name,
		"provider", cfg.LLM.DefaultProvider,
		"stream", cfg.LLM.Stream,
	)
	return fn(ctx, a)
}

func newLogger(cfg config.LoggerConfig, ownsTerminal bool) (*slog.Logger, func() error, error) {
	out := strings.ToLower(cfg.Output)
	if ownsTerminal && (out == "" || out == "stderr" || out == "stdout") {
		return logger.NewWithWriter(cfg, io.Discard), func() error { return nil }, nil
	}
	return logger.New(cfg)
}

// useTUI reports whether chat should run full-screen: both ends must be
// a terminal and --plain must be absent.
func useTUI(flags cliFlags) bool {
	if flags.Plain {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
