package scanner

import (
	"testing"

	"github.com/ragline/ragline/internal/chunker"
	"github.com/stretchr/testify/assert"
)

func TestClassify_CodeExtension(t *testing.T) {
	kind, ok := Classify("pkg/handler.go")
	assert.True(t, ok)
	assert.Equal(t, chunker.KindCode, kind)
}

func TestClassify_DocExtension(t *testing.T) {
	for _, path := range []string{"README.md", "notes.txt", "guide.rst", "index.html", "manual.adoc", "doc.org", "paper.tex"} {
		kind, ok := Classify(path)
		assert.True(t, ok, path)
		assert.Equal(t, chunker.KindDoc, kind, path)
	}
}

func TestClassify_UnknownExtensionIsNotIndexable(t *testing.T) {
	_, ok := Classify("archive.bin")
	assert.False(t, ok)

	_, ok = Classify("photo.png")
	assert.False(t, ok)
}

func TestClassify_DocExtensionsOverrideLanguageMap(t *testing.T) {
	// .html also appears in languageMap (as "html", a code language) but
	// Classify must resolve it to the doc set, since the doc/code
	// partition is keyed on extension, not on language detection.
	kind, ok := Classify("page.html")
	assert.True(t, ok)
	assert.Equal(t, chunker.KindDoc, kind)
}
