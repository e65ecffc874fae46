package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/corectx"
	"github.com/ragline/ragline/internal/logging"
	"github.com/ragline/ragline/internal/mcp"
	"github.com/ragline/ragline/internal/telemetry"
	"github.com/ragline/ragline/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var transport string
	var port int
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server, exposing the retrieval
core's rag_search/answer_generate/project_*/index_*/cache_*/code_* tool set
to AI clients (Claude Code, Cursor, ...) over stdio.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				_ = os.Setenv("AMANMCP_DEBUG", "1")
			}
			return runServe(cmd.Context(), transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio|sse)")
	cmd.Flags().IntVar(&port, "port", 0, "Port for network transports (unused for stdio)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable verbose MCP-safe logging")

	return cmd
}

// runServe starts the MCP server for the current project.
func runServe(ctx context.Context, transport string, port int) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}

	// BUG-034: stdout is reserved exclusively for JSON-RPC once the MCP
	// transport starts. All logging from this point on goes to a file.
	level := "info"
	if os.Getenv("AMANMCP_DEBUG") != "" {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPModeWithLevel(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanup()

	if transport == "stdio" {
		if stdinErr := verifyStdinForMCP(); stdinErr != nil {
			slog.Warn("stdin_precheck_failed", slog.String("error", stdinErr.Error()))
		}
	}

	dataDir := filepath.Join(root, ".amanmcp")
	if mkErr := os.MkdirAll(dataDir, 0o755); mkErr != nil {
		return fmt.Errorf("failed to create data directory: %w", mkErr)
	}

	core, err := corectx.Open(buildCoreEnvConfig(dataDir))
	if err != nil {
		return fmt.Errorf("failed to open retrieval core: %w", err)
	}
	defer func() { _ = core.Close() }()

	proj, err := core.AddProject(filepath.Base(root), root)
	if err != nil {
		return fmt.Errorf("failed to register project: %w", err)
	}

	srv, err := mcp.NewServer(core, root)
	if err != nil {
		return fmt.Errorf("failed to build MCP server: %w", err)
	}
	srv.SetMetrics(telemetry.NewQueryMetrics(nil))

	startBackgroundWatcher(ctx, root, core, proj.ID)

	addr := ""
	if port > 0 {
		addr = fmt.Sprintf(":%d", port)
	}
	return srv.Serve(ctx, transport, addr)
}

// buildCoreEnvConfig reads the retrieval core's own environment variables
// (independent of internal/config, per the core's own configuration
// surface) and points its data directory at a subdirectory of dataDir.
func buildCoreEnvConfig(dataDir string) corectx.EnvConfig {
	env := corectx.EnvConfig{
		DataDir:       filepath.Join(dataDir, "core"),
		EmbedEndpoint: os.Getenv("AMANMCP_CORE_EMBED_ENDPOINT"),
		EmbedModel:    os.Getenv("AMANMCP_CORE_EMBED_MODEL"),
		EmbedAPIKey:   os.Getenv("AMANMCP_CORE_EMBED_API_KEY"),
		LLMEndpoint:   os.Getenv("AMANMCP_CORE_LLM_ENDPOINT"),
		LLMModel:      os.Getenv("AMANMCP_CORE_LLM_MODEL"),
		LLMAPIKey:     os.Getenv("AMANMCP_CORE_LLM_API_KEY"),
	}
	if v := os.Getenv("AMANMCP_CORE_EMBED_TIMEOUT"); v != "" {
		if d, perr := time.ParseDuration(v); perr == nil {
			env.EmbedTimeout = d
		}
	}
	if v := os.Getenv("AMANMCP_CORE_LLM_TIMEOUT"); v != "" {
		if d, perr := time.ParseDuration(v); perr == nil {
			env.LLMTimeout = d
		}
	}
	return env
}

// startBackgroundWatcher starts the file watcher on a goroutine and
// returns immediately. BUG-035: recursive directory registration
// (addRecursive) can take seconds on large trees or slow filesystems, and
// must never delay the MCP handshake. A caller can widen that budget for
// diagnosis via AMANMCP_WATCHER_STARTUP_TIMEOUT; it is read only for the
// readiness log line below, never awaited here.
//
// Every debounced batch of filesystem events triggers one core.CatchUp
// call; the indexer's own singleflight group coalesces overlapping runs,
// so a burst of events during a large edit never starts more than one
// catch-up pass at a time.
func startBackgroundWatcher(ctx context.Context, root string, core *corectx.Context, projectID string) {
	startupBudget := 2 * time.Second
	if v := os.Getenv("AMANMCP_WATCHER_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			startupBudget = d
		}
	}

	go func() {
		started := time.Now()
		w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
		if err != nil {
			slog.Warn("watcher_init_failed", slog.String("error", err.Error()))
			return
		}

		go func() {
			for range w.Events() {
				if _, catchErr := core.CatchUp(ctx, projectID); catchErr != nil {
					slog.Warn("watcher_catchup_failed", slog.String("error", catchErr.Error()))
				}
			}
		}()
		go func() {
			for err := range w.Errors() {
				slog.Warn("watcher_error", slog.String("error", err.Error()))
			}
		}()

		if elapsed := time.Since(started); elapsed > startupBudget {
			slog.Warn("watcher_startup_exceeded_budget",
				slog.Duration("elapsed", elapsed), slog.Duration("budget", startupBudget))
		}
		if err := w.Start(ctx, root); err != nil && err != context.Canceled {
			slog.Warn("watcher_stopped", slog.String("error", err.Error()))
		}
	}()
}

// verifyStdinForMCP returns an error if stdin looks like an interactive
// terminal rather than a pipe. MCP clients always connect over a pipe; a
// terminal stdin means the server was started interactively by mistake.
func verifyStdinForMCP() error {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal, not a pipe: the MCP client must launch this process and connect over stdin/stdout")
	}
	return nil
}
