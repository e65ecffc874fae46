package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/corectx"
	"github.com/ragline/ragline/internal/logging"
	"github.com/ragline/ragline/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit     int
	format    string // "text", "json"
	useVector bool
	rerank    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase using hybrid keyword+vector retrieval,
the same rag_search operation the MCP server exposes to AI clients.

Examples:
  ragline search "authentication middleware"
  ragline search "handleRequest" --limit 5
  ragline search "error handling" --format json
  ragline search "how does retry backoff work" --rerank`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.useVector, "no-vector", false, "Request keyword-only retrieval (not applied by the search core: vector retrieval still runs)")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Rerank results with the configured LLM reranker")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
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

	req := corectx.SearchRequest{
		Selector:  proj.ID,
		Query:     query,
		K:         opts.limit,
		UseVector: !opts.useVector,
		AutoIndex: true,
	}

	var candidates []corectx.Candidate
	var degraded []string
	if opts.rerank {
		res, err := core.AnswerGenerate(ctx, corectx.AnswerRequest{SearchRequest: req, Rerank: true})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		candidates, degraded = res.Candidates, res.DegradedReasons
	} else {
		res, err := core.RagSearch(ctx, req)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		candidates, degraded = res.Candidates, res.DegradedReasons
	}
	slog.Info("search_complete", slog.Int("results", len(candidates)))

	if len(candidates) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, candidates)
	default:
		return formatText(out, query, candidates, degraded)
	}
}

// formatText outputs results in human-readable format.
func formatText(out *output.Writer, query string, candidates []corectx.Candidate, degraded []string) error {
	out.Statusf("🔍", "Found %d results for %q:", len(candidates), query)
	if len(degraded) > 0 {
		out.Status("", fmt.Sprintf("(degraded: %s)", strings.Join(degraded, ", ")))
	}
	out.Newline()

	for i, c := range candidates {
		location := c.Path
		if c.StartLine > 0 {
			location = fmt.Sprintf("%s:%d", c.Path, c.StartLine)
		}
		out.Statusf("", "%d. %s (score: %.3f)", i+1, location, c.FusedScore)

		for _, line := range getSnippet(c.Text, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}

	return nil
}

// formatJSON outputs results in JSON format.
func formatJSON(cmd *cobra.Command, candidates []corectx.Candidate) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(candidates)
}

// getSnippet returns the first n lines of content.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
