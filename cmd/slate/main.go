// Command slate runs the multi-agent question answering loop: an
// interactive chat, a WebSocket server, or a one-shot document indexer.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/slate-agents/slate/pkg/agents"
	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/config"
	"github.com/slate-agents/slate/pkg/coordinator"
	"github.com/slate-agents/slate/pkg/embedders"
	"github.com/slate-agents/slate/pkg/executor"
	"github.com/slate-agents/slate/pkg/llms"
	"github.com/slate-agents/slate/pkg/logger"
	"github.com/slate-agents/slate/pkg/memory"
	"github.com/slate-agents/slate/pkg/observability"
	"github.com/slate-agents/slate/pkg/rag"
	"github.com/slate-agents/slate/pkg/server"
	"github.com/slate-agents/slate/pkg/tools"
	"github.com/slate-agents/slate/pkg/vector"
)

// CLI is the kong command tree.
type CLI struct {
	Config   string `short:"c" help:"Path to the YAML config file." type:"path"`
	LogLevel string `help:"Override the configured log level (debug, info, warn, error)."`

	Chat  ChatCmd  `cmd:"" default:"1" help:"Interactive chat session."`
	Serve ServeCmd `cmd:"" help:"Serve the WebSocket API."`
	Index IndexCmd `cmd:"" help:"Index the document directory."`
}

// app holds the wired runtime shared by the commands.
type app struct {
	config   *config.Config
	llm      llms.Provider
	embedder embedders.Provider
	vectors  vector.Provider
	mcp      *tools.MultiMCP
	exec     *executor.Executor
	cache    *memory.Store
	docs     *rag.DocumentIndex
	turnLog  *memory.TurnLog
	metrics  *observability.Metrics
}

func buildApp(ctx context.Context, cli *CLI) (*app, error) {
	config.LoadDotEnv()

	var cfg *config.Config
	var err error
	if cli.Config != "" {
		cfg, err = config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	level := cfg.LogLevel
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	logger.Configure(level)

	a := &app{config: cfg, metrics: observability.New()}

	if a.llm, err = llms.New(&cfg.LLM); err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if a.embedder, err = embedders.New(&cfg.Embedder); err != nil {
		a.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if a.vectors, err = vector.New(&cfg.Vector); err != nil {
		a.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}
	if a.mcp, err = tools.Connect(ctx, cfg.Tools); err != nil {
		a.Close()
		return nil, fmt.Errorf("tool servers: %w", err)
	}

	a.exec = executor.New(a.mcp, cfg.Executor)
	a.cache = memory.NewStore(a.vectors, a.embedder, cfg.Retriever.SessionThreshold)
	a.docs = rag.NewDocumentIndex(a.vectors, a.embedder, cfg.RAG)

	if cfg.Memory.TurnLogPath != "" {
		if a.turnLog, err = memory.OpenTurnLog(cfg.Memory.TurnLogPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("turn log: %w", err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.turnLog != nil {
		_ = a.turnLog.Close()
	}
	if a.mcp != nil {
		_ = a.mcp.Close()
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
}

func (a *app) newCoordinator(io coordinator.IOHandler) (*coordinator.Coordinator, error) {
	convLog, err := coordinator.NewConversationLogger(a.config.Coordinator.LogsDir)
	if err != nil {
		return nil, err
	}
	deps := coordinator.Deps{
		LLM:       a.llm,
		Executor:  a.exec,
		Cache:     a.cache,
		Docs:      a.docs,
		Retrieval: a.config.Retriever,
		Embedder:  a.embedder,
		TurnLog:   a.turnLog,
		IO:        io,
		ConvLog:   convLog,
		Metrics:   a.metrics,
	}
	return coordinator.New(
		a.config.Coordinator,
		deps,
		agents.NewPerception(a.llm),
		agents.NewDecision(a.llm, a.mcp.Tools()),
	), nil
}

// ChatCmd runs the interactive REPL.
type ChatCmd struct {
	NewSession bool `help:"Start a fresh session instead of resuming the last one."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	coord, err := a.newCoordinator(coordinator.NewCLIHandler(os.Stdout, os.Stdin))
	if err != nil {
		return err
	}

	lastSessionPath := filepath.Join(a.config.Coordinator.MemoryDir, ".last_session_id")
	if !c.NewSession {
		if raw, err := os.ReadFile(lastSessionPath); err == nil {
			if id := strings.TrimSpace(string(raw)); id != "" {
				coord.ResumeSession(id)
				fmt.Printf("Resuming session %s\n", id)
			}
		}
	}

	hitl := blackboard.HITLConfig{}
	fmt.Println("Type a question, or 'exit' to quit. Commands: /hitl on|off|status, /step on|off")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		case strings.HasPrefix(line, "/hitl"):
			switch strings.TrimSpace(strings.TrimPrefix(line, "/hitl")) {
			case "on":
				hitl.RequirePlanApproval = true
				fmt.Println("Plan approval enabled.")
			case "off":
				hitl.RequirePlanApproval = false
				fmt.Println("Plan approval disabled.")
			default:
				fmt.Printf("Plan approval: %v, step approval: %v\n",
					hitl.RequirePlanApproval, hitl.RequireStepApproval)
			}
			continue
		case strings.HasPrefix(line, "/step"):
			switch strings.TrimSpace(strings.TrimPrefix(line, "/step")) {
			case "on":
				hitl.RequireStepApproval = true
				fmt.Println("Step approval enabled.")
			case "off":
				hitl.RequireStepApproval = false
				fmt.Println("Step approval disabled.")
			default:
				fmt.Println("Usage: /step on|off")
			}
			continue
		}

		coord.Run(ctx, line, &hitl)
		if err := os.MkdirAll(a.config.Coordinator.MemoryDir, 0o755); err == nil {
			_ = os.WriteFile(lastSessionPath, []byte(coord.SessionID()), 0o644)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// ServeCmd runs the WebSocket server.
type ServeCmd struct{}

func (s *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	factory := func(io coordinator.IOHandler) *coordinator.Coordinator {
		coord, err := a.newCoordinator(io)
		if err != nil {
			// The only failure mode is an unwritable logs dir; run without it.
			coord = coordinator.New(a.config.Coordinator, coordinator.Deps{
				LLM:       a.llm,
				Executor:  a.exec,
				Cache:     a.cache,
				Docs:      a.docs,
				Retrieval: a.config.Retriever,
				Embedder:  a.embedder,
				TurnLog:   a.turnLog,
				IO:        io,
				Metrics:   a.metrics,
			}, agents.NewPerception(a.llm), agents.NewDecision(a.llm, a.mcp.Tools()))
		}
		return coord
	}

	return server.New(a.config.Server, factory, a.metrics).ListenAndServe(ctx)
}

// IndexCmd indexes documents for tier-3 retrieval.
type IndexCmd struct {
	Paths []string `arg:"" optional:"" help:"Files or directories to index (defaults to the configured docs_dir)." type:"path"`
	Watch bool     `help:"Keep watching the directories and re-index on changes."`
}

func (i *IndexCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	paths := i.Paths
	if len(paths) == 0 {
		paths = []string{a.config.RAG.DocsDir}
	}

	var dirs []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		if info.IsDir() {
			count, err := a.docs.IndexDirectory(ctx, path)
			if err != nil {
				return fmt.Errorf("indexing %s: %w", path, err)
			}
			fmt.Printf("Indexed %d chunks from %s\n", count, path)
			dirs = append(dirs, path)
			continue
		}
		count, err := a.docs.IndexFile(ctx, path)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		fmt.Printf("Indexed %d chunks from %s\n", count, path)
	}

	if i.Watch {
		if len(dirs) == 0 {
			return fmt.Errorf("--watch needs at least one directory argument")
		}
		errCh := make(chan error, len(dirs))
		for _, dir := range dirs {
			go func(dir string) {
				errCh <- rag.NewWatcher(a.docs, dir).Run(ctx)
			}(dir)
		}
		return <-errCh
	}
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("slate"),
		kong.Description("Multi-agent question answering over your tools, memory, and documents."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
