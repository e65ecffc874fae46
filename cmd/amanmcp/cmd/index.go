package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/corectx"
	"github.com/ragline/ragline/internal/logging"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This registers the directory as a project (if not already registered) and
runs a catch-up pass: scanning, chunking, embedding, and updating the
keyword and vector indexes for files that changed since the last run.

Use --force to drop the keyword index too and rebuild everything from
scratch, rather than only the files the catch-up scan finds changed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Drop the keyword index and rebuild everything from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".amanmcp")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
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

	var result interface{ String() string }
	if force {
		res, err := core.IndexRebuild(ctx, proj.ID, true)
		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}
		result = res
	} else {
		res, err := core.CatchUp(ctx, proj.ID)
		if err != nil {
			return fmt.Errorf("catch-up failed: %w", err)
		}
		result = res
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", result.String())
	slog.Info("index_complete", slog.String("project", proj.ID), slog.String("result", result.String()))
	return nil
}
