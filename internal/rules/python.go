package rules

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/lang"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Rule ids emitted by the Python detector.
const (
	RuleUnsafeHTTP      = "PY-S101-UNSAFE-HTTP"
	RuleSubprocessCheck = "PY-S201-SUBPROCESS-CHECK"
	RuleBroadExcept     = "PY-E201-BROAD-EXCEPT"
	RuleAssertNonTest   = "PY-Q201-ASSERT-IN-NONTEST"
	RulePrintInSrc      = "PY-Q202-PRINT-IN-SRC"
	RuleEvalExec        = "PY-Q203-EVAL-EXEC"
)

// httpMethods are the requests.* calls that hang without a timeout.
var httpMethods = map[string]struct{}{
	"get": {}, "post": {}, "put": {}, "delete": {}, "patch": {}, "head": {}, "request": {},
}

// PythonDetector finds safety and quality issues in Python source by
// walking the parse tree.
type PythonDetector struct {
	parser *lang.Python
	info   map[string]RuleInfo
}

// NewPythonDetector returns the built-in Python detector.
func NewPythonDetector() *PythonDetector {
	d := &PythonDetector{parser: lang.NewPython(), info: make(map[string]RuleInfo)}
	for _, info := range d.Manifest() {
		d.info[info.ID] = info
	}
	return d
}

func (d *PythonDetector) Extensions() []string { return []string{".py"} }

func (d *PythonDetector) Manifest() []RuleInfo {
	return []RuleInfo{
		{ID: RuleUnsafeHTTP, Category: "security", Severity: 0.7, Complexity: 0.2,
			Description: "HTTP requests without timeout can hang indefinitely", AutoFix: true},
		{ID: RuleSubprocessCheck, Category: "security", Severity: 0.7, Complexity: 0.3,
			Description: "subprocess.run() without check=True ignores errors", AutoFix: true},
		{ID: RuleBroadExcept, Category: "exceptions", Severity: 0.6, Complexity: 0.3,
			Description: "Bare except catches all errors including system exits", AutoFix: false},
		{ID: RuleAssertNonTest, Category: "quality", Severity: 0.4, Complexity: 0.2,
			Description: "assert statements are stripped under -O", AutoFix: false},
		{ID: RulePrintInSrc, Category: "quality", Severity: 0.3, Complexity: 0.1,
			Description: "print() in library code bypasses logging", AutoFix: true},
		{ID: RuleEvalExec, Category: "security", Severity: 0.9, Complexity: 0.5,
			Description: "eval/exec on dynamic input executes arbitrary code", AutoFix: false},
	}
}

// Analyze parses src and walks the tree once, dispatching on node type.
func (d *PythonDetector) Analyze(path string, src []byte) ([]types.Finding, error) {
	tree, err := d.parser.Parse(context.Background(), src)
	if err != nil {
		return nil, err
	}

	isTest := isTestPath(path)
	var findings []types.Finding

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "call":
			findings = append(findings, d.checkCall(n, path, src)...)
		case "except_clause":
			if f, ok := d.checkExcept(n, path, src); ok {
				findings = append(findings, f)
			}
		case "assert_statement":
			if !isTest {
				line := int(n.StartPoint().Row) + 1
				findings = append(findings, newFinding(d.info[RuleAssertNonTest], path, src,
					line, int(n.EndPoint().Row)+1, "assert outside tests"))
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.Root())
	return findings, nil
}

// checkCall inspects one call node for the call-shaped rules.
func (d *PythonDetector) checkCall(n *sitter.Node, path string, src []byte) []types.Finding {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return nil
	}
	line := int(n.StartPoint().Row) + 1
	endLine := int(n.EndPoint().Row) + 1
	var findings []types.Finding

	switch fn.Type() {
	case "identifier":
		name := fn.Content(src)
		switch name {
		case "print":
			if !isTestPath(path) {
				findings = append(findings, newFinding(d.info[RulePrintInSrc], path, src,
					line, endLine, "print() call in source"))
			}
		case "eval", "exec":
			findings = append(findings, newFinding(d.info[RuleEvalExec], path, src,
				line, endLine, fmt.Sprintf("%s() call", name)))
		}
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Type() != "identifier" {
			return findings
		}
		objName, attrName := obj.Content(src), attr.Content(src)

		if objName == "requests" {
			if _, ok := httpMethods[attrName]; ok && !hasKeywordArg(n, src, "timeout") {
				findings = append(findings, newFinding(d.info[RuleUnsafeHTTP], path, src,
					line, endLine, fmt.Sprintf("requests.%s without timeout", attrName)))
			}
		}
		if objName == "subprocess" && attrName == "run" && !hasKeywordArg(n, src, "check") {
			findings = append(findings, newFinding(d.info[RuleSubprocessCheck], path, src,
				line, endLine, "subprocess.run without check="))
		}
	}
	return findings
}

// checkExcept flags bare `except:` and `except Exception:` clauses.
func (d *PythonDetector) checkExcept(n *sitter.Node, path string, src []byte) (types.Finding, bool) {
	broad := true
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "block" {
			continue
		}
		// Any exception selector narrower than Exception clears the rule.
		if child.Type() != "identifier" || child.Content(src) != "Exception" {
			broad = false
		}
		break
	}
	if !broad {
		return types.Finding{}, false
	}
	line := int(n.StartPoint().Row) + 1
	return newFinding(d.info[RuleBroadExcept], path, src, line, line, "broad exception handler"), true
}

// hasKeywordArg reports whether the call has a keyword argument by name.
func hasKeywordArg(call *sitter.Node, src []byte, name string) bool {
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

// isTestPath mirrors pytest's default collection conventions.
func isTestPath(path string) bool {
	base := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		base = path[idx+1:]
	}
	return strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") ||
		strings.Contains(path, "/tests/") || strings.HasPrefix(path, "tests/")
}
