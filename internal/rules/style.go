package rules

import (
	"strings"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Rule ids emitted by the style detector.
const (
	RuleTrailingWS = "PY-S310-TRAILING-WS"
	RuleEOFNewline = "PY-S311-EOF-NL"
	RuleBlankLines = "PY-S312-BLANKLINES"
)

// maxConsecutiveBlank is the threshold beyond which blank runs are flagged.
const maxConsecutiveBlank = 2

// StyleDetector finds whitespace-level issues. It works on raw lines and
// needs no parse tree, so it also covers files the Python parser rejects.
type StyleDetector struct {
	info map[string]RuleInfo
}

// NewStyleDetector returns the built-in style detector.
func NewStyleDetector() *StyleDetector {
	d := &StyleDetector{info: make(map[string]RuleInfo)}
	for _, info := range d.Manifest() {
		d.info[info.ID] = info
	}
	return d
}

func (d *StyleDetector) Extensions() []string { return []string{".py"} }

func (d *StyleDetector) Manifest() []RuleInfo {
	return []RuleInfo{
		{ID: RuleTrailingWS, Category: "style", Severity: 0.1, Complexity: 0.05,
			Description: "Trailing whitespace should be removed", AutoFix: true},
		{ID: RuleEOFNewline, Category: "style", Severity: 0.1, Complexity: 0.05,
			Description: "Files should end with a newline", AutoFix: true},
		{ID: RuleBlankLines, Category: "style", Severity: 0.1, Complexity: 0.05,
			Description: "Excessive blank lines reduce readability", AutoFix: true},
	}
}

func (d *StyleDetector) Analyze(path string, src []byte) ([]types.Finding, error) {
	if len(src) == 0 {
		return nil, nil
	}
	content := string(src)
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var findings []types.Finding
	blankRun := 0
	for i, line := range lines {
		lineNo := i + 1
		if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
			findings = append(findings, newFinding(d.info[RuleTrailingWS], path, src,
				lineNo, lineNo, "trailing whitespace"))
		}
		if strings.TrimSpace(line) == "" {
			blankRun++
			if blankRun == maxConsecutiveBlank+1 {
				findings = append(findings, newFinding(d.info[RuleBlankLines], path, src,
					lineNo, lineNo, "more than 2 consecutive blank lines"))
			}
		} else {
			blankRun = 0
		}
	}

	if !strings.HasSuffix(content, "\n") {
		lastLine := len(lines)
		findings = append(findings, newFinding(d.info[RuleEOFNewline], path, src,
			lastLine, lastLine, "missing newline at end of file"))
	}
	return findings, nil
}
