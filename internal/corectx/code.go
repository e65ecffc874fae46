package corectx

import (
	"context"

	"github.com/ragline/ragline/internal/symbols"
)

// CodeSymbols implements code.symbols: every named definition in path.
func (c *Context) CodeSymbols(ctx context.Context, projectID, path string) ([]symbols.Symbol, error) {
	ps, err := c.projectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.symbolsIdx.Symbols(path)
}

// CodeFindSymbol implements code.find_symbol: every definition site
// named name, optionally restricted to kind ("" matches any kind).
func (c *Context) CodeFindSymbol(ctx context.Context, projectID, name string, kind symbols.Kind) ([]symbols.Location, error) {
	ps, err := c.projectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.symbolsIdx.FindDefinition(name, kind), nil
}

// CodeReferences implements code.references: every reference site for an
// identifier named name across the project's parsed files.
func (c *Context) CodeReferences(ctx context.Context, projectID, name string) ([]symbols.Location, error) {
	ps, err := c.projectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.symbolsIdx.FindReferences(name), nil
}
