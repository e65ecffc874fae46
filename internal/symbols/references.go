package symbols

// identifierNodeTypes are node types treated as "an identifier that
// could be a reference to a named definition" across the languages this
// package supports. Kept intentionally broad (tree-sitter grammars name
// their identifier leaf differently) rather than per-language, since a
// reference site is just "this token reads as name", not a definition
// site (which does need the per-language FunctionTypes/etc. precision).
var identifierNodeTypes = map[string]bool{
	"identifier":         true,
	"type_identifier":    true,
	"field_identifier":   true,
	"property_identifier": true,
	"shorthand_property_identifier": true,
}

// findReferences walks tree for identifier nodes whose text equals name,
// skipping any node that is itself, or is nested under, one of config's
// CommentAndStringTypes (spec 4.12: "names occurring in comments or
// strings excluded").
func findReferences(tree *Tree, config *LanguageConfig, name string) []Location {
	if tree == nil || tree.Root == nil || name == "" {
		return nil
	}
	excluded := make(map[string]bool, len(config.CommentAndStringTypes))
	for _, t := range config.CommentAndStringTypes {
		excluded[t] = true
	}

	var out []Location
	var walk func(n *Node, inExcluded bool)
	walk = func(n *Node, inExcluded bool) {
		nowExcluded := inExcluded || excluded[n.Type]
		if !nowExcluded && identifierNodeTypes[n.Type] && n.GetContent(tree.Source) == name {
			out = append(out, Location{
				StartLine: int(n.StartPoint.Row) + 1,
				EndLine:   int(n.EndPoint.Row) + 1,
			})
		}
		for _, child := range n.Children {
			walk(child, nowExcluded)
		}
	}
	walk(tree.Root, false)
	return out
}
