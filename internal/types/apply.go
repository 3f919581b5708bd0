package types

import (
	"fmt"
	"sort"
	"strings"
)

// DetectNewline returns the dominant line terminator in content, defaulting
// to "\n" when the content has no newlines at all.
func DetectNewline(content string) string {
	crlf := strings.Count(content, "\r\n")
	lf := strings.Count(content, "\n") - crlf
	if crlf > lf {
		return "\r\n"
	}
	return "\n"
}

// ApplyEdits applies a plan's edits to content in descending start-line
// order, which keeps line numbers stable as earlier lines are untouched by
// later (lower) edits. The file's newline style is preserved; edit payloads
// use "\n" internally and are converted on the way in.
//
// The edits must be pairwise non-overlapping; EditPlan.Validate enforces
// that before any apply is attempted.
func ApplyEdits(content string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return content, nil
	}

	newline := DetectNewline(content)
	trailing := strings.HasSuffix(content, "\n")

	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.TrimSuffix(normalized, "\n")
	var lines []string
	if normalized != "" || content != "" {
		lines = strings.Split(normalized, "\n")
	}
	if content == "" {
		lines = nil
	}

	ordered := append([]Edit(nil), edits...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StartLine > ordered[j].StartLine
	})

	for _, e := range ordered {
		// A payload carrying its own final newline on the last line of the
		// file forces a trailing newline (the EOF-newline fixer relies on
		// this); payloads without one keep the file's existing state.
		if strings.HasSuffix(e.Payload, "\n") && e.EndLine >= len(lines) {
			trailing = true
		}
		payload := strings.TrimSuffix(e.Payload, "\n")
		var payloadLines []string
		if payload != "" || e.Payload != "" {
			payloadLines = strings.Split(payload, "\n")
		}

		switch e.Op {
		case OpReplace:
			if e.StartLine < 1 || e.EndLine > len(lines) {
				return "", fmt.Errorf("replace range %d-%d out of bounds (file has %d lines)", e.StartLine, e.EndLine, len(lines))
			}
			lines = spliceLines(lines, e.StartLine-1, e.EndLine, payloadLines)
		case OpDelete:
			if e.StartLine < 1 || e.EndLine > len(lines) {
				return "", fmt.Errorf("delete range %d-%d out of bounds (file has %d lines)", e.StartLine, e.EndLine, len(lines))
			}
			lines = spliceLines(lines, e.StartLine-1, e.EndLine, nil)
		case OpInsert:
			// Insert places the payload before StartLine; StartLine may be
			// len(lines)+1 to append at end of file.
			if e.StartLine < 1 || e.StartLine > len(lines)+1 {
				return "", fmt.Errorf("insert point %d out of bounds (file has %d lines)", e.StartLine, len(lines))
			}
			lines = spliceLines(lines, e.StartLine-1, e.StartLine-1, payloadLines)
		default:
			return "", fmt.Errorf("unknown edit op %q", e.Op)
		}
	}

	out := strings.Join(lines, "\n")
	if trailing && len(lines) > 0 {
		out += "\n"
	}
	if newline != "\n" {
		out = strings.ReplaceAll(out, "\n", newline)
	}
	return out, nil
}

// spliceLines replaces lines[from:to] with repl and returns the result.
func spliceLines(lines []string, from, to int, repl []string) []string {
	out := make([]string, 0, len(lines)-(to-from)+len(repl))
	out = append(out, lines[:from]...)
	out = append(out, repl...)
	out = append(out, lines[to:]...)
	return out
}
