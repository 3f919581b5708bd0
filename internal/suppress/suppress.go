// Package suppress parses in-source suppression directives and filters
// findings against them. Directives live in comments and are scanned once
// per file per run.
//
// Grammar, applied to comment text:
//
//	ace:disable=<rule>       suppress <rule> on the current line
//	ace:disable-all          suppress every rule on the current line
//	ace:file-disable=<rule>  suppress <rule> for the whole file
//	ace:file-disable-all     suppress every rule for the whole file
//	ace:disable <rule>       open a block suppression for <rule>
//	ace:enable <rule>        close the block; the range is half-open
//	                         [disable-line, enable-line)
package suppress

import (
	"strings"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

const marker = "ace:"

// Set holds the parsed suppressions for one file.
type Set struct {
	fileAll   bool
	fileRules map[string]struct{}
	lineAll   map[int]struct{}
	lineRules map[int]map[string]struct{}
	blocks    []block
}

// block is a half-open [start, end) line range for one rule. An unclosed
// block runs to the end of the file.
type block struct {
	rule  string
	start int
	end   int // 0 means unclosed
}

// Parse scans content once and collects every directive. Line numbers are
// 1-based to match finding coordinates.
func Parse(content string) *Set {
	s := &Set{
		fileRules: make(map[string]struct{}),
		lineAll:   make(map[int]struct{}),
		lineRules: make(map[int]map[string]struct{}),
	}

	open := make(map[string]int) // rule -> start line of open block

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lineNo := i + 1
		idx := strings.Index(line, marker)
		if idx < 0 {
			continue
		}
		directive := strings.TrimSpace(line[idx+len(marker):])
		// Strip comment closers (e.g. markdown "-->")
		if end := strings.Index(directive, "-->"); end >= 0 {
			directive = strings.TrimSpace(directive[:end])
		}

		switch {
		case directive == "disable-all":
			s.lineAll[lineNo] = struct{}{}
		case directive == "file-disable-all":
			s.fileAll = true
		case strings.HasPrefix(directive, "file-disable="):
			rule := strings.TrimPrefix(directive, "file-disable=")
			if rule != "" {
				s.fileRules[rule] = struct{}{}
			}
		case strings.HasPrefix(directive, "disable="):
			rule := strings.TrimPrefix(directive, "disable=")
			if rule != "" {
				if s.lineRules[lineNo] == nil {
					s.lineRules[lineNo] = make(map[string]struct{})
				}
				s.lineRules[lineNo][rule] = struct{}{}
			}
		case strings.HasPrefix(directive, "disable "):
			rule := strings.TrimSpace(strings.TrimPrefix(directive, "disable "))
			if rule != "" {
				if _, already := open[rule]; !already {
					open[rule] = lineNo
				}
			}
		case strings.HasPrefix(directive, "enable "):
			rule := strings.TrimSpace(strings.TrimPrefix(directive, "enable "))
			if start, ok := open[rule]; ok {
				s.blocks = append(s.blocks, block{rule: rule, start: start, end: lineNo})
				delete(open, rule)
			}
		}
	}

	for rule, start := range open {
		s.blocks = append(s.blocks, block{rule: rule, start: start})
	}
	return s
}

// IsSuppressed reports whether rule is suppressed at line.
func (s *Set) IsSuppressed(rule string, line int) bool {
	if s.fileAll {
		return true
	}
	if _, ok := s.fileRules[rule]; ok {
		return true
	}
	if _, ok := s.lineAll[line]; ok {
		return true
	}
	if rules, ok := s.lineRules[line]; ok {
		if _, ok := rules[rule]; ok {
			return true
		}
	}
	for _, b := range s.blocks {
		if b.rule != rule {
			continue
		}
		if line >= b.start && (b.end == 0 || line < b.end) {
			return true
		}
	}
	return false
}

// FileFullySuppressed reports whether every rule is off for this file.
func (s *Set) FileFullySuppressed() bool {
	return s.fileAll
}

// Filter removes findings whose rule is suppressed at their start line.
// It returns the survivors and the count removed.
func Filter(findings []types.Finding, setsByFile map[string]*Set) ([]types.Finding, int) {
	out := findings[:0]
	removed := 0
	for _, f := range findings {
		set := setsByFile[f.File]
		if set != nil && set.IsSuppressed(f.RuleID, f.StartLine) {
			removed++
			continue
		}
		out = append(out, f)
	}
	return out, removed
}
