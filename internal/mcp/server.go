// Package mcp implements the Model Context Protocol (MCP) server for ragline.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragline/ragline/internal/corectx"
	"github.com/ragline/ragline/internal/telemetry"
	"github.com/ragline/ragline/pkg/version"
)

// Server is the MCP server for ragline.
// It bridges AI clients (Claude Code, Cursor) with the retrieval core,
// exposing rag_search/answer_generate/project_*/index_*/cache_*/code_*
// as registered tools plus a markdown-formatted search convenience tool.
type Server struct {
	mcp    *mcp.Server
	core   corePort
	logger *slog.Logger

	// rootPath is the default project's root, used for resource listing
	// and project-type detection.
	rootPath string

	// metrics is optional query telemetry, set via SetMetrics.
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// NewServer creates a new MCP server wired to the retrieval core. rootPath
// is used for project-type detection and as the default resource root.
func NewServer(core corePort, rootPath string) (*Server, error) {
	if core == nil {
		return nil, errors.New("retrieval core is required")
	}

	s := &Server{
		core:     core,
		rootPath: rootPath,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "ragline",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.RegisterCoreTools(core)

	return s, nil
}

// SetMetrics sets the query metrics collector for telemetry.
// When set, a query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "ragline", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, true
}

// MarkdownSearchInput defines the input schema for the markdown-formatted
// search tool, the convenience entry point for clients that want prose
// rather than the raw candidate JSON rag_search returns.
type MarkdownSearchInput struct {
	Project string `json:"project,omitempty" jsonschema:"project name, id, or path; empty selects the active project"`
	Query   string `json:"query" jsonschema:"the search query to execute"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// registerTools registers the markdown search convenience tool. The full
// JSON tool set (rag_search, answer_generate, project_*, index_*, cache_*,
// code_*) is registered separately by RegisterCoreTools.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Primary search tool. Instantly finds code and documentation using a full-codebase index. Use this for 95% of your search tasks - faster and smarter than grep. Returns markdown with file locations and matched snippets.",
	}, s.mcpSearchHandler)
	s.logger.Debug("registered tool", slog.String("name", "search"))
}

// mcpSearchHandler is the MCP SDK handler for the markdown search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input MarkdownSearchInput) (
	*mcp.CallToolResult,
	string,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, "", NewInvalidParamsError("query parameter is required and must be non-empty")
	}

	requestID := generateRequestID()
	limit := clampLimit(input.Limit, 10, 1, 50)

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", limit))

	res, err := s.core.RagSearch(ctx, corectx.SearchRequest{
		Selector:  input.Project,
		Query:     input.Query,
		K:         limit,
		UseVector: true,
		AutoIndex: true,
	})
	if err != nil {
		s.logger.Error("search failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
		return nil, "", MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Int("result_count", len(res.Candidates)))

	return nil, FormatCandidatesMarkdown(input.Query, res.Candidates, res.DegradedReasons), nil
}

// ListResources returns all available resources: the default project's
// indexed files, discovered fresh from disk on every call.
func (s *Server) ListResources(ctx context.Context, _ string) ([]ResourceInfo, string, error) {
	s.mu.RLock()
	root := s.rootPath
	s.mu.RUnlock()

	if root == "" {
		return nil, "", nil
	}

	paths, err := listProjectFiles(ctx, root)
	if err != nil {
		return nil, "", err
	}

	resources := make([]ResourceInfo, 0, len(paths))
	for _, p := range paths {
		resources = append(resources, ResourceInfo{
			URI:      fmt.Sprintf("file://%s", p),
			Name:     p,
			MIMEType: MimeTypeForPath(p),
		})
	}
	return resources, "", nil
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(_ context.Context, uri string) (*ResourceContent, error) {
	s.mu.RLock()
	root := s.rootPath
	s.mu.RUnlock()

	if !strings.HasPrefix(uri, "file://") {
		return nil, NewResourceNotFoundError(uri)
	}
	relPath := strings.TrimPrefix(uri, "file://")

	content, err := readProjectFile(root, relPath)
	if err != nil {
		return nil, MapError(err)
	}

	return &ResourceContent{
		URI:      uri,
		Content:  content,
		MIMEType: MimeTypeForPath(relPath),
	}, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport), slog.String("addr", addr))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "sse":
		return fmt.Errorf("SSE transport not yet implemented")
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
