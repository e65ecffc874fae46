package symbols

import "strings"

// Extractor walks a parsed Tree and pulls out named definitions.
type Extractor struct {
	registry *LanguageRegistry
}

// NewExtractor builds an Extractor against the default language registry.
func NewExtractor() *Extractor {
	return &Extractor{registry: DefaultRegistry()}
}

// Extract returns every Symbol found in tree. Returns an empty, non-nil
// slice for a nil tree or an unrecognized language.
func (e *Extractor) Extract(tree *Tree) []Symbol {
	if tree == nil || tree.Root == nil {
		return []Symbol{}
	}
	config, ok := e.registry.GetByName(tree.Language)
	if !ok {
		return []Symbol{}
	}

	symbols := make([]Symbol, 0, 16)
	tree.Root.Walk(func(n *Node) bool {
		if sym := e.fromNode(n, tree.Source, config, tree.Language); sym != nil {
			symbols = append(symbols, *sym)
		}
		return true
	})
	return symbols
}

func (e *Extractor) fromNode(n *Node, source []byte, config *LanguageConfig, language string) *Symbol {
	kind, found := matchKind(n.Type, config)
	if !found {
		return e.specialCase(n, source, language)
	}

	name := e.extractName(n, source, language)
	if name == "" {
		return nil
	}

	return &Symbol{
		Name:       name,
		Kind:       kind,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		Signature:  extractSignature(n.GetContent(source), kind, language),
		DocComment: e.extractDocComment(n, source, language),
	}
}

func matchKind(nodeType string, config *LanguageConfig) (Kind, bool) {
	for _, kinds := range []struct {
		types []string
		kind  Kind
	}{
		{config.FunctionTypes, KindFunction},
		{config.MethodTypes, KindMethod},
		{config.ClassTypes, KindClass},
		{config.InterfaceTypes, KindInterface},
		{config.TypeDefTypes, KindType},
		{config.ConstantTypes, KindConstant},
		{config.VariableTypes, KindVariable},
	} {
		for _, t := range kinds.types {
			if t == nodeType {
				return kinds.kind, true
			}
		}
	}
	return "", false
}

func (e *Extractor) extractName(n *Node, source []byte, language string) string {
	switch language {
	case "go":
		return extractGoName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return extractJSName(n, source)
	case "python":
		return firstChildOfType(n, source, "identifier")
	default:
		for _, t := range []string{"identifier", "type_identifier", "field_identifier", "name"} {
			if v := firstChildOfType(n, source, t); v != "" {
				return v
			}
		}
		return ""
	}
}

func firstChildOfType(n *Node, source []byte, nodeType string) string {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child.GetContent(source)
		}
	}
	return ""
}

func extractGoName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		return firstChildOfType(n, source, "identifier")
	case "method_declaration":
		return firstChildOfType(n, source, "field_identifier")
	case "type_declaration":
		for _, child := range n.Children {
			if child.Type == "type_spec" {
				if v := firstChildOfType(child, source, "type_identifier"); v != "" {
					return v
				}
			}
		}
	case "const_declaration", "var_declaration":
		specType := "const_spec"
		if n.Type == "var_declaration" {
			specType = "var_spec"
		}
		for _, child := range n.Children {
			if child.Type == specType {
				if v := firstChildOfType(child, source, "identifier"); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func extractJSName(n *Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				if v := firstChildOfType(child, source, "identifier"); v != "" {
					return v
				}
			}
		}
	}
	if v := firstChildOfType(n, source, "identifier"); v != "" {
		return v
	}
	return firstChildOfType(n, source, "type_identifier")
}

// specialCase catches JS/TS `const f = () => {}` and `const f = function(){}`,
// whose declared name lives on a node type (lexical_declaration) this
// package otherwise only uses for plain constant bindings.
func (e *Extractor) specialCase(n *Node, source []byte, language string) *Symbol {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
		if n.Type != "lexical_declaration" && n.Type != "variable_declaration" {
			return nil
		}
	default:
		return nil
	}

	for _, child := range n.Children {
		if child.Type != "variable_declarator" {
			continue
		}
		var name string
		var isFunction bool
		for _, gc := range child.Children {
			if gc.Type == "identifier" {
				name = gc.GetContent(source)
			}
			if gc.Type == "arrow_function" || gc.Type == "function" || gc.Type == "function_expression" {
				isFunction = true
			}
		}
		if name != "" && isFunction {
			return &Symbol{
				Name:      name,
				Kind:      KindFunction,
				StartLine: int(n.StartPoint.Row) + 1,
				EndLine:   int(n.EndPoint.Row) + 1,
				Signature: extractSignature(n.GetContent(source), KindFunction, language),
			}
		}
	}
	return nil
}

func (e *Extractor) extractDocComment(n *Node, source []byte, language string) string {
	if n.StartPoint.Row == 0 {
		return ""
	}
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}
	prevLineEnd := lineStart - 1
	prevLineStart := prevLineEnd - 1
	for prevLineStart > 0 && source[prevLineStart-1] != '\n' {
		prevLineStart--
	}
	prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

	switch language {
	case "go", "typescript", "tsx", "javascript", "jsx":
		if strings.HasPrefix(prevLine, "//") {
			return strings.TrimPrefix(prevLine, "//")
		}
	}
	return ""
}

// extractSignature returns the first line of a definition's content,
// truncated at its opening brace for brace-delimited languages so an
// LLM-facing prompt or listing shows just the interface.
func extractSignature(content string, kind Kind, language string) string {
	if content == "" {
		return ""
	}
	firstLine := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])

	switch language {
	case "go", "typescript", "tsx", "javascript", "jsx", "rust":
		if idx := strings.Index(firstLine, "{"); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
	}
	return firstLine
}
