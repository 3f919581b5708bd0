package codemods

import (
	"strings"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/rules"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// TrailingWhitespaceFixer strips trailing spaces and tabs. Pure whitespace
// never reaches the canonical tree, so the codemod declares itself
// structure-preserving and sails through every guard layer.
type TrailingWhitespaceFixer struct{}

// NewTrailingWhitespaceFixer returns the built-in trailing whitespace fixer.
func NewTrailingWhitespaceFixer() *TrailingWhitespaceFixer { return &TrailingWhitespaceFixer{} }

func (c *TrailingWhitespaceFixer) RuleID() string { return rules.RuleTrailingWS }

func (c *TrailingWhitespaceFixer) Effects() types.RuleEffects {
	return types.RuleEffects{StructurePreserving: true}
}

func (c *TrailingWhitespaceFixer) Plan(path string, src []byte) ([]types.Edit, error) {
	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
	var edits []types.Edit
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == line {
			continue
		}
		edits = append(edits, types.Edit{
			File: path, StartLine: i + 1, EndLine: i + 1,
			Op: types.OpReplace, Payload: trimmed,
		})
	}
	return edits, nil
}

// EOFNewlineFixer appends the missing final newline.
type EOFNewlineFixer struct{}

// NewEOFNewlineFixer returns the built-in EOF newline fixer.
func NewEOFNewlineFixer() *EOFNewlineFixer { return &EOFNewlineFixer{} }

func (c *EOFNewlineFixer) RuleID() string { return rules.RuleEOFNewline }

func (c *EOFNewlineFixer) Effects() types.RuleEffects {
	return types.RuleEffects{StructurePreserving: true}
}

func (c *EOFNewlineFixer) Plan(path string, src []byte) ([]types.Edit, error) {
	content := string(src)
	if content == "" || strings.HasSuffix(content, "\n") {
		return nil, nil
	}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	last := len(lines)
	return []types.Edit{{
		File: path, StartLine: last, EndLine: last,
		Op: types.OpReplace, Payload: lines[last-1] + "\n",
	}}, nil
}
