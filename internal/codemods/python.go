package codemods

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/lang"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/rules"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// defaultTimeout is the timeout value the hardener inserts, in seconds.
const defaultTimeout = 30

// RequestsHardener adds timeout= to requests.* calls that lack one.
// Multi-line calls are left alone; rewriting them line-wise would risk
// breaking continuation layout.
type RequestsHardener struct {
	parser *lang.Python
}

// NewRequestsHardener returns the built-in requests hardener.
func NewRequestsHardener() *RequestsHardener {
	return &RequestsHardener{parser: lang.NewPython()}
}

func (c *RequestsHardener) RuleID() string { return rules.RuleUnsafeHTTP }

func (c *RequestsHardener) Effects() types.RuleEffects {
	return types.RuleEffects{MayChangeAST: true}
}

func (c *RequestsHardener) Plan(path string, src []byte) ([]types.Edit, error) {
	tree, err := c.parser.Parse(context.Background(), src)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(src), "\n")

	var edits []types.Edit
	walkCalls(tree.Root(), func(call *sitter.Node) {
		fn := call.ChildByFieldName("function")
		if fn == nil || fn.Type() != "attribute" {
			return
		}
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Type() != "identifier" || obj.Content(src) != "requests" {
			return
		}
		if !isHTTPMethod(attr.Content(src)) || hasKeyword(call, src, "timeout") {
			return
		}
		startLine := int(call.StartPoint().Row) + 1
		endLine := int(call.EndPoint().Row) + 1
		if startLine != endLine || startLine > len(lines) {
			return
		}

		line := lines[startLine-1]
		closeIdx := strings.LastIndex(line, ")")
		if closeIdx < 0 {
			return
		}
		inner := strings.TrimSpace(line[strings.Index(line, "(")+1 : closeIdx])
		sep := ", "
		if inner == "" {
			sep = ""
		}
		fixed := line[:closeIdx] + fmt.Sprintf("%stimeout=%d", sep, defaultTimeout) + line[closeIdx:]
		edits = append(edits, types.Edit{
			File: path, StartLine: startLine, EndLine: startLine,
			Op: types.OpReplace, Payload: fixed,
		})
	})
	return edits, nil
}

// PrintToLogging rewrites print(...) calls to logging.info(...). It only
// applies when the module already imports logging; inserting the import
// would cascade into import-count changes better left to a human.
type PrintToLogging struct {
	parser *lang.Python
}

// NewPrintToLogging returns the built-in print converter.
func NewPrintToLogging() *PrintToLogging {
	return &PrintToLogging{parser: lang.NewPython()}
}

func (c *PrintToLogging) RuleID() string { return rules.RulePrintInSrc }

func (c *PrintToLogging) Effects() types.RuleEffects {
	return types.RuleEffects{MayChangeAST: true}
}

func (c *PrintToLogging) Plan(path string, src []byte) ([]types.Edit, error) {
	tree, err := c.parser.Parse(context.Background(), src)
	if err != nil {
		return nil, err
	}
	if !contains(c.parser.Imports(tree), "logging") {
		return nil, nil
	}
	lines := strings.Split(string(src), "\n")

	var edits []types.Edit
	walkCalls(tree.Root(), func(call *sitter.Node) {
		fn := call.ChildByFieldName("function")
		if fn == nil || fn.Type() != "identifier" || fn.Content(src) != "print" {
			return
		}
		startLine := int(call.StartPoint().Row) + 1
		if startLine != int(call.EndPoint().Row)+1 || startLine > len(lines) {
			return
		}
		line := lines[startLine-1]
		col := int(call.StartPoint().Column)
		if col+5 > len(line) || line[col:col+5] != "print" {
			return
		}
		fixed := line[:col] + "logging.info" + line[col+5:]
		edits = append(edits, types.Edit{
			File: path, StartLine: startLine, EndLine: startLine,
			Op: types.OpReplace, Payload: fixed,
		})
	})
	return edits, nil
}

// DeadImportRemover deletes top-level imports whose bound names are never
// referenced. Its manifest declares both the symbol-count change and the
// specific modules it removes.
type DeadImportRemover struct {
	parser *lang.Python
}

// NewDeadImportRemover returns the built-in dead import remover.
func NewDeadImportRemover() *DeadImportRemover {
	return &DeadImportRemover{parser: lang.NewPython()}
}

func (c *DeadImportRemover) RuleID() string { return rules.RuleDeadImport }

func (c *DeadImportRemover) Effects() types.RuleEffects {
	// The removable import list is per-file. With the list empty, any
	// vanished import fails the guard's import layer, so the per-plan
	// effects are refined via EffectsForFile.
	return types.RuleEffects{MayChangeSymbolCounts: true, MayChangeAST: true}
}

// EffectsForFile returns effects naming the modules actually removed in
// src, so the guard can verify nothing else vanished.
func (c *DeadImportRemover) EffectsForFile(path string, src []byte) types.RuleEffects {
	effects := c.Effects()
	dead, err := rules.DeadImports(c.parser, src)
	if err != nil {
		return effects
	}
	for _, d := range dead {
		effects.RemovableImports = append(effects.RemovableImports, d.Module)
	}
	return effects
}

func (c *DeadImportRemover) Plan(path string, src []byte) ([]types.Edit, error) {
	dead, err := rules.DeadImports(c.parser, src)
	if err != nil {
		return nil, err
	}
	var edits []types.Edit
	for _, d := range dead {
		edits = append(edits, types.Edit{
			File: path, StartLine: d.Line, EndLine: d.Line, Op: types.OpDelete,
		})
	}
	return edits, nil
}

// walkCalls visits every call node.
func walkCalls(n *sitter.Node, visit func(*sitter.Node)) {
	if n.Type() == "call" {
		visit(n)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walkCalls(n.NamedChild(i), visit)
	}
}

func isHTTPMethod(name string) bool {
	switch name {
	case "get", "post", "put", "delete", "patch", "head", "request":
		return true
	}
	return false
}

func hasKeyword(call *sitter.Node, src []byte, name string) bool {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return false
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() != "keyword_argument" {
			continue
		}
		if kw := arg.ChildByFieldName("name"); kw != nil && kw.Content(src) == name {
			return true
		}
	}
	return false
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
