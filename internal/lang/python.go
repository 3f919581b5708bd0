package lang

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Tree is a parsed source file: the tree-sitter CST plus the bytes it was
// parsed from. The CST is lossless over the source, which is what makes
// byte-identical re-emission possible.
type Tree struct {
	Source []byte
	root   *sitter.Node
	tree   *sitter.Tree
}

// Root exposes the root node for callers that walk the tree directly.
func (t *Tree) Root() *sitter.Node { return t.root }

// Python parses Python source with the tree-sitter grammar. Instances are
// safe for concurrent use; each Parse call creates its own parser.
type Python struct{}

// NewPython returns the bundled Python parser.
func NewPython() *Python { return &Python{} }

func (p *Python) Name() string          { return "python" }
func (p *Python) Extensions() []string  { return []string{".py"} }
func (p *Python) ByteIdenticalReemit() bool { return true }

// Parse builds the CST and rejects trees containing syntax errors.
func (p *Python) Parse(ctx context.Context, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
	}
	root := tree.RootNode()
	if root.HasError() {
		if bad := firstErrorNode(root); bad != nil {
			return nil, types.ParseErrorf("syntax error at line %d", bad.StartPoint().Row+1)
		}
		return nil, types.ParseErrorf("syntax error")
	}
	return &Tree{Source: src, root: root, tree: tree}, nil
}

// firstErrorNode finds the shallowest ERROR or MISSING node.
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// Reemit returns the tree's source bytes. The CST keeps every byte of the
// original, so emission is exact.
func (p *Python) Reemit(t *Tree) []byte {
	return t.Source
}

// CanonicalHash fingerprints the tree structure. Comments are skipped and
// whitespace never appears in the CST's named nodes, so two sources that
// differ only in formatting or comments hash equal, while any change to a
// semantically significant node changes the hash.
func (p *Python) CanonicalHash(t *Tree) [32]byte {
	h := sha256.New()
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "comment" {
			return
		}
		h.Write([]byte(n.Type()))
		h.Write([]byte{'('})
		if n.NamedChildCount() == 0 {
			h.Write([]byte(n.Content(t.Source)))
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
		h.Write([]byte{')'})
	}
	walk(t.root)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// CountSymbols counts function and class definitions anywhere in the tree
// and import statements at module level.
func (p *Python) CountSymbols(t *Tree) SymbolCounts {
	var counts SymbolCounts
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_definition":
			counts.Functions++
		case "class_definition":
			counts.Classes++
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(t.root)

	for i := 0; i < int(t.root.NamedChildCount()); i++ {
		switch t.root.NamedChild(i).Type() {
		case "import_statement", "import_from_statement":
			counts.Imports++
		}
	}
	return counts
}

// Symbols extracts declared functions and classes with their enclosing
// qualification, ordered by line.
func (p *Python) Symbols(t *Tree) []Symbol {
	var symbols []Symbol
	var walk func(n *sitter.Node, scope []string)
	walk = func(n *sitter.Node, scope []string) {
		nodeType := n.Type()
		if nodeType == "function_definition" || nodeType == "class_definition" {
			name := ""
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name = nameNode.Content(t.Source)
			}
			kind := SymbolFunction
			if nodeType == "class_definition" {
				kind = SymbolClass
			}
			qualified := strings.Join(append(append([]string(nil), scope...), name), ".")
			symbols = append(symbols, Symbol{
				Name:      name,
				Kind:      kind,
				Line:      int(n.StartPoint().Row) + 1,
				EndLine:   int(n.EndPoint().Row) + 1,
				Qualified: qualified,
			})
			scope = append(scope, name)
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), scope)
		}
	}
	walk(t.root, nil)

	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Line < symbols[j].Line })
	return symbols
}

// Imports returns the sorted module paths imported at module level.
func (p *Python) Imports(t *Tree) []string {
	seen := make(map[string]struct{})
	for i := 0; i < int(t.root.NamedChildCount()); i++ {
		n := t.root.NamedChild(i)
		switch n.Type() {
		case "import_statement":
			// import a.b, c  — each name child is a dotted_name or aliased_import
			for j := 0; j < int(n.NamedChildCount()); j++ {
				child := n.NamedChild(j)
				switch child.Type() {
				case "dotted_name":
					seen[child.Content(t.Source)] = struct{}{}
				case "aliased_import":
					if name := child.ChildByFieldName("name"); name != nil {
						seen[name.Content(t.Source)] = struct{}{}
					}
				}
			}
		case "import_from_statement":
			if mod := n.ChildByFieldName("module_name"); mod != nil {
				seen[mod.Content(t.Source)] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for imp := range seen {
		out = append(out, imp)
	}
	sort.Strings(out)
	return out
}

// EnclosingSymbol returns the qualified name of the innermost definition of
// the requested kind covering line, or "" at module level.
func (p *Python) EnclosingSymbol(t *Tree, line int, kind SymbolKind) string {
	want := "function_definition"
	if kind == SymbolClass {
		want = "class_definition"
	}

	best := ""
	bestSpan := -1
	var walk func(n *sitter.Node, scope []string)
	walk = func(n *sitter.Node, scope []string) {
		nodeType := n.Type()
		if nodeType == "function_definition" || nodeType == "class_definition" {
			name := ""
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name = nameNode.Content(t.Source)
			}
			start := int(n.StartPoint().Row) + 1
			end := int(n.EndPoint().Row) + 1
			if nodeType == want && start <= line && line <= end {
				span := end - start
				if bestSpan < 0 || span < bestSpan {
					bestSpan = span
					best = strings.Join(append(append([]string(nil), scope...), name), ".")
				}
			}
			scope = append(scope, name)
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), scope)
		}
	}
	walk(t.root, nil)
	return best
}
