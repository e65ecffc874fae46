package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/corectx"
	"github.com/ragline/ragline/internal/ui"
)

// hashString returns SHA256 hash of a string (first 16 chars). Used
// wherever a project needs a stable filesystem-safe identifier derived
// from its root path, independent of internal/registry's own 8-hex-char
// project IDs.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current project's index including:
  - Number of indexed files, chunks, and vectors
  - Last catch-up time
  - Storage sizes (keyword index, vector index)
  - Embedder kind and rebuild state`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		cwd, _ := os.Getwd()
		root = cwd
	}

	dataDir := filepath.Join(root, ".amanmcp")
	core, err := corectx.Open(buildCoreEnvConfig(dataDir))
	if err != nil {
		return fmt.Errorf("failed to open retrieval core: %w", err)
	}
	defer func() { _ = core.Close() }()

	proj, err := core.AddProject(filepath.Base(root), root)
	if err != nil {
		return fmt.Errorf("failed to register project: %w", err)
	}

	result, err := core.IndexStatus(ctx, proj.ID)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	info := ui.StatusInfo{
		ProjectName:    filepath.Base(root),
		TotalFiles:     result.FilesIndexed,
		TotalChunks:    result.ChunksIndexed,
		LastIndexed:    result.LastCatchUp,
		MetadataSize:   getDirSize(filepath.Join(dataDir, "core", "indexstate")),
		BM25Size:       getDirSize(filepath.Join(dataDir, "core", "keyword")),
		VectorSize:     getDirSize(filepath.Join(dataDir, "core", "vector")),
		EmbedderType:   result.EmbedderKind,
		EmbedderStatus: "ready",
		WatcherStatus:  "n/a",
	}
	info.TotalSize = info.MetadataSize + info.BM25Size + info.VectorSize
	if result.NeedsRebuild {
		info.EmbedderStatus = "stale"
	}

	noColor := ui.DetectNoColor()
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)

	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// getDirSize returns the total size of all files in a directory.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
