// Package lang defines the language parser plug-in boundary consumed by
// the guard, the repomap, and pack synthesis. One Python implementation is
// bundled; the interface allows adding others.
package lang

import (
	"context"
	"path/filepath"
	"strings"
)

// SymbolCounts summarizes the declarations visible in a parse tree.
type SymbolCounts struct {
	Functions int `json:"functions"`
	Classes   int `json:"classes"`
	Imports   int `json:"imports"`
}

// SymbolKind classifies a declared symbol
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolModule   SymbolKind = "module"
)

// Symbol is one declaration extracted from a parse tree.
type Symbol struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	Line      int        `json:"line"` // 1-based
	EndLine   int        `json:"end_line"`
	Qualified string     `json:"qualified"` // dotted path, e.g. "ClassName.method"
}

// Parser is the per-language plug-in interface. Implementations must be
// safe for concurrent use; every Parse call owns its own parser state.
type Parser interface {
	// Name identifies the language (e.g. "python").
	Name() string

	// Extensions lists the lowercase file extensions this parser handles.
	Extensions() []string

	// Parse builds a tree from raw bytes. A syntax error returns an error
	// wrapping types.ErrParse with position detail.
	Parse(ctx context.Context, src []byte) (*Tree, error)

	// Reemit converts a tree back to bytes. ByteIdenticalReemit declares
	// whether the emission is expected to equal the original bytes or
	// merely parse to an equivalent tree.
	Reemit(t *Tree) []byte
	ByteIdenticalReemit() bool

	// CanonicalHash fingerprints the tree with comments and whitespace
	// normalized away; semantically significant nodes are preserved.
	CanonicalHash(t *Tree) [32]byte

	// CountSymbols reports declared functions, classes and top-level
	// imports, taken from the parse tree.
	CountSymbols(t *Tree) SymbolCounts

	// Symbols extracts the declared symbols for the repomap.
	Symbols(t *Tree) []Symbol

	// Imports returns the module paths imported at top level, sorted.
	Imports(t *Tree) []string

	// EnclosingSymbol returns the innermost function or class covering
	// line, or "" when the line is at module level.
	EnclosingSymbol(t *Tree, line int, kind SymbolKind) string
}

// Registry maps file extensions to parsers.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry builds a registry over the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			r.byExt[ext] = p
		}
	}
	return r
}

// DefaultRegistry returns the registry with the bundled Python parser.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPython())
}

// ForPath returns the parser responsible for path, or nil when the file's
// language is not parseable (such files skip tree-based guard layers).
func (r *Registry) ForPath(path string) Parser {
	return r.byExt[strings.ToLower(filepath.Ext(path))]
}
