package rules

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/lang"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// RuleDeadImport flags top-level imports whose bound name is never used.
const RuleDeadImport = "PY-I201-DEAD-IMPORT"

// DeadImport describes one unused top-level import statement.
type DeadImport struct {
	Module string // dotted module path as imported
	Bound  string // the name the import binds in module scope
	Line   int    // 1-based line of the import statement
}

// DeadImports finds `import X` / `import X as Y` statements whose bound
// name never appears outside import statements. from-imports are left
// alone: their bound names routinely feed __all__ style re-exports.
func DeadImports(parser *lang.Python, src []byte) ([]DeadImport, error) {
	tree, err := parser.Parse(context.Background(), src)
	if err != nil {
		return nil, err
	}
	root := tree.Root()

	type candidate struct {
		imp  DeadImport
		node *sitter.Node
	}
	var candidates []candidate
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() != "import_statement" {
			continue
		}
		// Only single-target statements are removable as a whole line.
		if n.NamedChildCount() != 1 {
			continue
		}
		child := n.NamedChild(0)
		var module, bound string
		switch child.Type() {
		case "dotted_name":
			module = child.Content(src)
			bound = strings.SplitN(module, ".", 2)[0]
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			module = name.Content(src)
			bound = alias.Content(src)
		default:
			continue
		}
		candidates = append(candidates, candidate{
			imp:  DeadImport{Module: module, Bound: bound, Line: int(n.StartPoint().Row) + 1},
			node: n,
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	used := make(map[string]bool)
	var walk func(n *sitter.Node, insideImport bool)
	walk = func(n *sitter.Node, insideImport bool) {
		t := n.Type()
		if t == "import_statement" || t == "import_from_statement" {
			insideImport = true
		}
		if !insideImport && t == "identifier" {
			used[n.Content(src)] = true
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), insideImport)
		}
	}
	walk(root, false)

	var dead []DeadImport
	for _, c := range candidates {
		if !used[c.imp.Bound] {
			dead = append(dead, c.imp)
		}
	}
	return dead, nil
}

// DeadImportDetector emits findings for unused top-level imports.
type DeadImportDetector struct {
	parser *lang.Python
	info   RuleInfo
}

// NewDeadImportDetector returns the built-in dead import detector.
func NewDeadImportDetector() *DeadImportDetector {
	d := &DeadImportDetector{parser: lang.NewPython()}
	d.info = d.Manifest()[0]
	return d
}

func (d *DeadImportDetector) Extensions() []string { return []string{".py"} }

func (d *DeadImportDetector) Manifest() []RuleInfo {
	return []RuleInfo{
		{ID: RuleDeadImport, Category: "style", Severity: 0.3, Complexity: 0.1,
			Description: "Unused imports add load time and reader overhead", AutoFix: true},
	}
}

func (d *DeadImportDetector) Analyze(path string, src []byte) ([]types.Finding, error) {
	dead, err := DeadImports(d.parser, src)
	if err != nil {
		return nil, err
	}
	var findings []types.Finding
	for _, imp := range dead {
		findings = append(findings, newFinding(d.info, path, src, imp.Line, imp.Line,
			"unused import "+imp.Module))
	}
	return findings, nil
}
