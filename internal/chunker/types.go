// Package chunker splits file content into fixed-size, overlapping windows.
// It performs no I/O and no language parsing: the symbol-aware view of a
// file lives in internal/symbols, not here.
package chunker

// Kind distinguishes the two windowing strategies: code files use a
// line-based stride, doc files use a token-based stride.
type Kind string

const (
	KindCode Kind = "code"
	KindDoc  Kind = "doc"
)

// Chunk is a single contiguous window of a file. Ordinal is zero-based
// within the file; callers that need a globally unique chunk-id combine
// it with a project id and the file path (spec: "{project}:{path}:{ordinal}").
type Chunk struct {
	Ordinal   int
	Path      string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
	Text      string
	Kind      Kind
}

const (
	// CodeWindowLines is the number of lines per code chunk.
	CodeWindowLines = 50
	// CodeOverlapLines is the overlap between consecutive code chunks.
	CodeOverlapLines = 10
	// codeStrideLines is the line advance between window starts.
	codeStrideLines = CodeWindowLines - CodeOverlapLines

	// DocWindowTokens is the number of tokens per doc chunk.
	DocWindowTokens = 256
	// DocOverlapTokens is the overlap between consecutive doc chunks.
	DocOverlapTokens = 32
	// docStrideTokens is the token advance between window starts.
	docStrideTokens = DocWindowTokens - DocOverlapTokens
)
