package suppress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

func TestLineSuppression(t *testing.T) {
	s := Parse("x = eval(data)  # ace:disable=PY-Q203-EVAL-EXEC\ny = eval(data)\n")

	assert.True(t, s.IsSuppressed("PY-Q203-EVAL-EXEC", 1))
	assert.False(t, s.IsSuppressed("PY-Q203-EVAL-EXEC", 2))
	assert.False(t, s.IsSuppressed("PY-Q202-PRINT-IN-SRC", 1),
		"a named suppression only covers its rule")
}

func TestDisableAllLine(t *testing.T) {
	s := Parse("bad_line()  # ace:disable-all\nother()\n")
	assert.True(t, s.IsSuppressed("ANY-RULE", 1))
	assert.False(t, s.IsSuppressed("ANY-RULE", 2))
}

func TestFileWideSuppression(t *testing.T) {
	s := Parse("# ace:file-disable=PY-Q202-PRINT-IN-SRC\nprint('x')\n")
	assert.True(t, s.IsSuppressed("PY-Q202-PRINT-IN-SRC", 2))
	assert.False(t, s.IsSuppressed("PY-Q203-EVAL-EXEC", 2))

	s = Parse("# ace:file-disable-all\nanything()\n")
	assert.True(t, s.IsSuppressed("PY-Q203-EVAL-EXEC", 99))
	assert.True(t, s.FileFullySuppressed())
}

func TestBlockSuppressionHalfOpen(t *testing.T) {
	content := `a()
# ace:disable PY-X
b()
c()
# ace:enable PY-X
d()
`
	s := Parse(content)
	assert.False(t, s.IsSuppressed("PY-X", 1))
	assert.True(t, s.IsSuppressed("PY-X", 2))
	assert.True(t, s.IsSuppressed("PY-X", 4))
	assert.False(t, s.IsSuppressed("PY-X", 5), "range is half-open at the enable line")
	assert.False(t, s.IsSuppressed("PY-X", 6))
}

func TestUnclosedBlockRunsToEOF(t *testing.T) {
	s := Parse("# ace:disable PY-X\na()\nb()\n")
	assert.True(t, s.IsSuppressed("PY-X", 3))
	assert.True(t, s.IsSuppressed("PY-X", 999))
}

func TestMarkdownCommentCloserStripped(t *testing.T) {
	s := Parse("<!-- ace:disable=MD-001 -->\n")
	assert.True(t, s.IsSuppressed("MD-001", 1))
}

func TestFilter(t *testing.T) {
	sets := map[string]*Set{
		"a.py": Parse("x = 1  # ace:disable=R1\n"),
	}
	findings := []types.Finding{
		{RuleID: "R1", File: "a.py", StartLine: 1, EndLine: 1},
		{RuleID: "R2", File: "a.py", StartLine: 1, EndLine: 1},
		{RuleID: "R1", File: "b.py", StartLine: 1, EndLine: 1},
	}
	out, removed := Filter(findings, sets)
	assert.Equal(t, 1, removed)
	assert.Len(t, out, 2)
}
