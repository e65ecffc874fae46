package scanner

import "github.com/ragline/ragline/internal/chunker"

// docExtensions is the fixed set of extensions indexed as documentation.
// Disjoint from the code set: an extension belongs to exactly one of the two.
var docExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".rst":      true,
	".html":     true,
	".htm":      true,
	".adoc":     true,
	".org":      true,
	".tex":      true,
}

// Classify maps a relative path to the chunker Kind that should process it.
// The second return value is false when the path's extension belongs to
// neither the code set nor the doc set, meaning the file is not indexable
// at all and the scanner should skip it.
func Classify(relPath string) (chunker.Kind, bool) {
	ext := extension(relPath)
	if docExtensions[ext] {
		return chunker.KindDoc, true
	}
	if DetectLanguage(relPath) != "" {
		return chunker.KindCode, true
	}
	return "", false
}
