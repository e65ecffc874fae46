package symbols

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/hcl"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/toml"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"
)

// LanguageRegistry maps file extensions and language names to tree-sitter
// grammars and the node-type config that drives symbol extraction.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry builds the registry with every language this
// repository ships tree-sitter grammars for. Languages with no
// FunctionTypes/ClassTypes/etc. registered (HTML, CSS, HCL, TOML, YAML)
// still parse successfully; they simply never produce a Symbol, since
// those formats have no "named definition" in the sense spec 4.12 means.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	r.registerRust()
	r.registerBash()
	r.registerMarkupAndConfig()

	return r
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the process-wide language registry.
func DefaultRegistry() *LanguageRegistry { return defaultRegistry }

func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

// GetByExtension returns the language config registered for a file
// extension (case-insensitive, leading dot optional).
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[name]
	return config, ok
}

// GetByName returns a registered language's config by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the grammar for a registered language.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:                  "go",
		Extensions:            []string{".go"},
		FunctionTypes:         []string{"function_declaration"},
		MethodTypes:           []string{"method_declaration"},
		TypeDefTypes:          []string{"type_declaration"},
		ConstantTypes:         []string{"const_declaration"},
		VariableTypes:         []string{"var_declaration"},
		CommentAndStringTypes: []string{"comment", "interpreted_string_literal", "raw_string_literal"},
	}
	r.registerLanguage(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:                  "typescript",
		Extensions:            []string{".ts"},
		FunctionTypes:         []string{"function_declaration"},
		MethodTypes:           []string{"method_definition"},
		ClassTypes:            []string{"class_declaration"},
		InterfaceTypes:        []string{"interface_declaration"},
		TypeDefTypes:          []string{"type_alias_declaration"},
		ConstantTypes:         []string{"lexical_declaration"},
		VariableTypes:         []string{"variable_declaration"},
		CommentAndStringTypes: []string{"comment", "string", "template_string"},
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:                  "tsx",
		Extensions:            []string{".tsx"},
		FunctionTypes:         tsConfig.FunctionTypes,
		MethodTypes:           tsConfig.MethodTypes,
		ClassTypes:            tsConfig.ClassTypes,
		InterfaceTypes:        tsConfig.InterfaceTypes,
		TypeDefTypes:          tsConfig.TypeDefTypes,
		ConstantTypes:         tsConfig.ConstantTypes,
		VariableTypes:         tsConfig.VariableTypes,
		CommentAndStringTypes: tsConfig.CommentAndStringTypes,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:                  "javascript",
		Extensions:            []string{".js", ".mjs"},
		FunctionTypes:         []string{"function_declaration", "function"},
		MethodTypes:           []string{"method_definition"},
		ClassTypes:            []string{"class_declaration"},
		ConstantTypes:         []string{"lexical_declaration"},
		VariableTypes:         []string{"variable_declaration"},
		CommentAndStringTypes: []string{"comment", "string", "template_string"},
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	jsxConfig := &LanguageConfig{
		Name:                  "jsx",
		Extensions:            []string{".jsx"},
		FunctionTypes:         jsConfig.FunctionTypes,
		MethodTypes:           jsConfig.MethodTypes,
		ClassTypes:            jsConfig.ClassTypes,
		ConstantTypes:         jsConfig.ConstantTypes,
		VariableTypes:         jsConfig.VariableTypes,
		CommentAndStringTypes: jsConfig.CommentAndStringTypes,
	}
	r.registerLanguage(jsxConfig, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:                  "python",
		Extensions:            []string{".py"},
		FunctionTypes:         []string{"function_definition"},
		ClassTypes:            []string{"class_definition"},
		VariableTypes:         []string{"assignment"},
		CommentAndStringTypes: []string{"comment", "string"},
	}
	r.registerLanguage(config, python.GetLanguage())
}

func (r *LanguageRegistry) registerRust() {
	config := &LanguageConfig{
		Name:                  "rust",
		Extensions:            []string{".rs"},
		FunctionTypes:         []string{"function_item"},
		ClassTypes:            []string{"struct_item", "enum_item"},
		InterfaceTypes:        []string{"trait_item"},
		ConstantTypes:         []string{"const_item", "static_item"},
		TypeDefTypes:          []string{"type_item"},
		CommentAndStringTypes: []string{"line_comment", "block_comment", "string_literal"},
	}
	r.registerLanguage(config, rust.GetLanguage())
}

func (r *LanguageRegistry) registerBash() {
	config := &LanguageConfig{
		Name:                  "shell",
		Extensions:            []string{".sh", ".bash"},
		FunctionTypes:         []string{"function_definition"},
		VariableTypes:         []string{"variable_assignment"},
		CommentAndStringTypes: []string{"comment", "string"},
	}
	r.registerLanguage(config, bash.GetLanguage())
}

// registerMarkupAndConfig registers the remaining supported languages
// named by spec 4.12 (HTML, CSS, HCL, TOML, YAML). None of them carry a
// "named definition" concept in the function/class/variable sense, so
// their configs leave every *Types slice empty: the parser still
// succeeds (keeping these files eligible for findReferences-style
// identifier search over selectors, keys, and block labels) but
// extraction yields no symbols — the same degrade path spec 4.12 allows
// for an outright parse failure.
func (r *LanguageRegistry) registerMarkupAndConfig() {
	r.registerLanguage(&LanguageConfig{
		Name: "html", Extensions: []string{".html", ".htm"},
		CommentAndStringTypes: []string{"comment"},
	}, html.GetLanguage())

	r.registerLanguage(&LanguageConfig{
		Name: "css", Extensions: []string{".css"},
		CommentAndStringTypes: []string{"comment", "string_value"},
	}, css.GetLanguage())

	r.registerLanguage(&LanguageConfig{
		Name: "hcl", Extensions: []string{".hcl", ".tf"},
		CommentAndStringTypes: []string{"comment", "string_lit"},
	}, hcl.GetLanguage())

	r.registerLanguage(&LanguageConfig{
		Name: "toml", Extensions: []string{".toml"},
		CommentAndStringTypes: []string{"comment", "string"},
	}, toml.GetLanguage())

	r.registerLanguage(&LanguageConfig{
		Name: "yaml", Extensions: []string{".yaml", ".yml"},
		CommentAndStringTypes: []string{"comment"},
	}, yaml.GetLanguage())
}
