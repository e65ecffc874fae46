package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/corectx"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/registry"
	"github.com/ragline/ragline/internal/symbols"
)

// fakeCore is a minimal corePort double driven entirely by test-set
// fields.
type fakeCore struct {
	searchResult corectx.SearchResult
	searchErr    error
	answerResult corectx.AnswerResult
	answerErr    error
	statusResult corectx.StatusResult
	statusErr    error
	rebuildErr   error
	projects     []*registry.Project
	addErr       error
}

func (f *fakeCore) RagSearch(context.Context, corectx.SearchRequest) (corectx.SearchResult, error) {
	return f.searchResult, f.searchErr
}

func (f *fakeCore) AnswerGenerate(context.Context, corectx.AnswerRequest) (corectx.AnswerResult, error) {
	return f.answerResult, f.answerErr
}

func (f *fakeCore) IndexStatus(context.Context, string) (corectx.StatusResult, error) {
	return f.statusResult, f.statusErr
}

func (f *fakeCore) IndexRebuild(context.Context, string, bool) (indexer.Result, error) {
	return indexer.Result{}, f.rebuildErr
}

func (f *fakeCore) AddProject(name, path string) (*registry.Project, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	p := &registry.Project{ID: "aaaaaaaa", Name: name, Path: path}
	f.projects = append(f.projects, p)
	return p, nil
}

func (f *fakeCore) ActivateProject(string) (*registry.Project, error) { return nil, nil }
func (f *fakeCore) RemoveProject(string) error                        { return nil }
func (f *fakeCore) ListProjects() []*registry.Project                 { return f.projects }
func (f *fakeCore) CacheClear(context.Context, string) error          { return nil }

func (f *fakeCore) CacheStatus(context.Context, string) (corectx.CacheStatusResult, error) {
	return corectx.CacheStatusResult{}, nil
}

func (f *fakeCore) CodeSymbols(context.Context, string, string) ([]symbols.Symbol, error) {
	return nil, nil
}

func (f *fakeCore) CodeFindSymbol(context.Context, string, string, symbols.Kind) ([]symbols.Location, error) {
	return nil, nil
}

func (f *fakeCore) CodeReferences(context.Context, string, string) ([]symbols.Location, error) {
	return nil, nil
}

func TestNewServer_RequiresCore(t *testing.T) {
	// Given: no retrieval core
	// When: creating a server
	_, err := NewServer(nil, "/tmp/project")

	// Then: construction fails
	require.Error(t, err)
}

func TestNewServer_RegistersMarkdownSearchAndCoreTools(t *testing.T) {
	// Given: a fake core
	core := &fakeCore{}

	// When: creating the server
	srv, err := NewServer(core, "/tmp/project")

	// Then: it constructs successfully with both tool sets registered
	require.NoError(t, err)
	assert.NotNil(t, srv.MCPServer())
	name, ver := srv.Info()
	assert.Equal(t, "ragline", name)
	assert.NotEmpty(t, ver)
}

func TestMcpSearchHandler_RejectsEmptyQuery(t *testing.T) {
	// Given: a server with a fake core
	srv, err := NewServer(&fakeCore{}, "/tmp/project")
	require.NoError(t, err)

	// When: invoking search with an empty query
	_, _, err = srv.mcpSearchHandler(context.Background(), nil, MarkdownSearchInput{Query: "  "})

	// Then: an invalid-params error is returned
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestMcpSearchHandler_FormatsMarkdown(t *testing.T) {
	// Given: a core returning one candidate
	core := &fakeCore{
		searchResult: corectx.SearchResult{
			Candidates: []corectx.Candidate{
				{Path: "internal/foo.go", StartLine: 1, EndLine: 3, Text: "func Foo() {}", FusedScore: 0.9},
			},
		},
	}
	srv, err := NewServer(core, "/tmp/project")
	require.NoError(t, err)

	// When: invoking search
	_, markdown, err := srv.mcpSearchHandler(context.Background(), nil, MarkdownSearchInput{Query: "foo", Limit: 5})

	// Then: the response is markdown mentioning the matched file
	require.NoError(t, err)
	assert.Contains(t, markdown, "internal/foo.go")
	assert.Contains(t, markdown, "func Foo")
}

func TestMcpSearchHandler_PropagatesCoreError(t *testing.T) {
	// Given: a core that fails
	core := &fakeCore{searchErr: assert.AnError}
	srv, err := NewServer(core, "/tmp/project")
	require.NoError(t, err)

	// When: invoking search
	_, _, err = srv.mcpSearchHandler(context.Background(), nil, MarkdownSearchInput{Query: "foo"})

	// Then: the core error is mapped to an MCP error
	require.Error(t, err)
}
