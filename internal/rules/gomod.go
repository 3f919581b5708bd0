package rules

import (
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Rule ids emitted by the go.mod detector.
const (
	RuleGoModAudit = "GO-D101-GOMOD-AUDIT"
)

// GoModDetector audits go.mod files for structural problems: a missing go
// directive, duplicate requires, and replace directives pointing at local
// paths that will not resolve elsewhere.
type GoModDetector struct {
	info map[string]RuleInfo
}

// NewGoModDetector returns the built-in go.mod detector.
func NewGoModDetector() *GoModDetector {
	d := &GoModDetector{info: make(map[string]RuleInfo)}
	for _, info := range d.Manifest() {
		d.info[info.ID] = info
	}
	return d
}

func (d *GoModDetector) Extensions() []string { return []string{".mod"} }

func (d *GoModDetector) Manifest() []RuleInfo {
	return []RuleInfo{
		{ID: RuleGoModAudit, Category: "dependencies", Severity: 0.4, Complexity: 0.2,
			Description: "go.mod should declare a go version and avoid duplicate or local-only directives"},
	}
}

func (d *GoModDetector) Analyze(path string, src []byte) ([]types.Finding, error) {
	if !strings.HasSuffix(path, "go.mod") {
		return nil, nil
	}
	mf, err := modfile.Parse(path, src, nil)
	if err != nil {
		return nil, types.ParseErrorf("go.mod parse: %v", err)
	}

	var findings []types.Finding
	if mf.Go == nil || mf.Go.Version == "" {
		findings = append(findings, newFinding(d.info[RuleGoModAudit], path, src, 1, 1,
			"missing go directive"))
	}

	seen := make(map[string]bool)
	for _, req := range mf.Require {
		line := req.Syntax.Start.Line
		if seen[req.Mod.Path] {
			findings = append(findings, newFinding(d.info[RuleGoModAudit], path, src, line, line,
				"duplicate require of "+req.Mod.Path))
			continue
		}
		seen[req.Mod.Path] = true
	}

	for _, rep := range mf.Replace {
		if rep.New.Version == "" && (strings.HasPrefix(rep.New.Path, "/") || strings.HasPrefix(rep.New.Path, ".")) {
			line := rep.Syntax.Start.Line
			findings = append(findings, newFinding(d.info[RuleGoModAudit], path, src, line, line,
				"replace directive points at local path "+rep.New.Path))
		}
	}
	return findings, nil
}
