package mcp

import (
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/corectx"
)

// FormatCandidatesMarkdown formats rag_search candidates as markdown, the
// format the "search" tool returns for clients that want prose rather than
// raw candidate JSON.
func FormatCandidatesMarkdown(query string, candidates []corectx.Candidate, degraded []string) string {
	if len(candidates) == 0 {
		return fmt.Sprintf("No results found for %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for %q\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(candidates))
	if len(candidates) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	if len(degraded) > 0 {
		fmt.Fprintf(&sb, "_Degraded: %s_\n\n", strings.Join(degraded, ", "))
	}

	for i, c := range candidates {
		formatCandidate(&sb, i+1, c)
	}

	return sb.String()
}

func formatCandidate(sb *strings.Builder, num int, c corectx.Candidate) {
	fmt.Fprintf(sb, "### %d. %s:%d-%d (score: %.3f)\n\n", num, c.Path, c.StartLine, c.EndLine, c.FusedScore)
	if c.InBoth {
		sb.WriteString("_Matched by both keyword and vector search._\n\n")
	}

	lang := languageForPath(c.Path)
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, c.Text)
}

// languageForPath derives a markdown code-fence language hint from a file
// extension; unknown extensions fence as plain text.
func languageForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".go"):
		return "go"
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".tsx"):
		return "typescript"
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".jsx"):
		return "javascript"
	case strings.HasSuffix(path, ".py"):
		return "python"
	case strings.HasSuffix(path, ".rs"):
		return "rust"
	case strings.HasSuffix(path, ".md"), strings.HasSuffix(path, ".mdx"):
		return ""
	default:
		return "text"
	}
}

// clampLimit ensures limit is within [min, max], substituting defaultVal
// when limit is not positive.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
