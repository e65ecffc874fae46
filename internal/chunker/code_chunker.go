package chunker

import (
	"strings"
	"unicode/utf8"
)

// ChunkCode splits code content into 50-line windows with 10-line overlap,
// emitted at line offsets 0, 40, 80, ... . The final window may be shorter
// than the stride. Empty windows (whitespace only) are dropped. Returns an
// error only if content is not valid UTF-8; the caller treats that file as
// skipped, never partially chunked.
func ChunkCode(path string, content []byte) ([]Chunk, error) {
	if !utf8.Valid(content) {
		return nil, errNotUTF8
	}

	lines := splitLines(string(content))
	if len(lines) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	ordinal := 0
	for offset := 0; offset < len(lines); offset += codeStrideLines {
		end := offset + CodeWindowLines
		if end > len(lines) {
			end = len(lines)
		}

		text := strings.Join(lines[offset:end], "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				Ordinal:   ordinal,
				Path:      path,
				StartLine: offset + 1,
				EndLine:   end,
				Text:      text,
				Kind:      KindCode,
			})
			ordinal++
		}

		if end >= len(lines) {
			break
		}
	}

	return chunks, nil
}

// splitLines splits content into lines without producing a spurious
// trailing empty line when content ends with a newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
