package chunker

import (
	"strings"
	"unicode/utf8"
)

// ChunkDoc splits prose content into 256-token windows with 32-token
// overlap, emitted at token offsets 0, 224, 448, ... . Tokens are
// whitespace-separated runs, with CJK characters as individual tokens.
// The window text preserves the original source bytes between its first
// and last token, including interior whitespace. Returns an error only
// if content is not valid UTF-8.
func ChunkDoc(path string, content []byte) ([]Chunk, error) {
	if !utf8.Valid(content) {
		return nil, errNotUTF8
	}

	text := string(content)
	tokens := tokenizeDoc(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	ordinal := 0
	for offset := 0; offset < len(tokens); offset += docStrideTokens {
		end := offset + DocWindowTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		first := tokens[offset]
		last := tokens[end-1]
		windowText := text[first.start:last.end]

		if strings.TrimSpace(windowText) != "" {
			chunks = append(chunks, Chunk{
				Ordinal:   ordinal,
				Path:      path,
				StartLine: first.line,
				EndLine:   last.line,
				Text:      windowText,
				Kind:      KindDoc,
			})
			ordinal++
		}

		if end >= len(tokens) {
			break
		}
	}

	return chunks, nil
}
