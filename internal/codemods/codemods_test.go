package codemods

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/rules"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

func applyPlan(t *testing.T, c Codemod, path, src string) string {
	t.Helper()
	edits, err := c.Plan(path, []byte(src))
	require.NoError(t, err)
	out, err := types.ApplyEdits(src, edits)
	require.NoError(t, err)
	return out
}

func TestRequestsHardenerAddsTimeout(t *testing.T) {
	c := NewRequestsHardener()
	src := "import requests\n\nresp = requests.get(url)\n"

	edits, err := c.Plan("client.py", []byte(src))
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, 3, edits[0].StartLine)

	out, err := types.ApplyEdits(src, edits)
	require.NoError(t, err)
	assert.Equal(t, "import requests\n\nresp = requests.get(url, timeout=30)\n", out)
}

func TestRequestsHardenerIdempotent(t *testing.T) {
	c := NewRequestsHardener()
	src := "import requests\n\nresp = requests.get(url)\n"
	fixed := applyPlan(t, c, "client.py", src)

	edits, err := c.Plan("client.py", []byte(fixed))
	require.NoError(t, err)
	assert.Empty(t, edits, "a second plan over fixed output applies nothing")
}

func TestRequestsHardenerSkipsMultiLineCalls(t *testing.T) {
	c := NewRequestsHardener()
	src := "import requests\n\nresp = requests.get(\n    url,\n)\n"
	edits, err := c.Plan("client.py", []byte(src))
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestPrintToLoggingRequiresLoggingImport(t *testing.T) {
	c := NewPrintToLogging()

	edits, err := c.Plan("app.py", []byte("print('hi')\n"))
	require.NoError(t, err)
	assert.Empty(t, edits, "no rewrite without an existing logging import")

	src := "import logging\n\nprint('hi')\n"
	out := applyPlan(t, c, "app.py", src)
	assert.Equal(t, "import logging\n\nlogging.info('hi')\n", out)
}

func TestDeadImportRemover(t *testing.T) {
	c := NewDeadImportRemover()
	src := "import os\nimport sys\n\nprint(sys.argv)\n"

	out := applyPlan(t, c, "app.py", src)
	assert.Equal(t, "import sys\n\nprint(sys.argv)\n", out)

	effects := c.EffectsForFile("app.py", []byte(src))
	assert.True(t, effects.CanRemoveImport("os"))
	assert.False(t, effects.CanRemoveImport("sys"))
}

func TestDeadImportRemoverIdempotent(t *testing.T) {
	c := NewDeadImportRemover()
	src := "import os\nimport sys\n\nprint(sys.argv)\n"
	fixed := applyPlan(t, c, "app.py", src)

	edits, err := c.Plan("app.py", []byte(fixed))
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestDeadImportRemoverKeepsAliasedUse(t *testing.T) {
	c := NewDeadImportRemover()
	edits, err := c.Plan("app.py", []byte("import numpy as np\n\nx = np.zeros(3)\n"))
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestTrailingWhitespaceFixer(t *testing.T) {
	c := NewTrailingWhitespaceFixer()
	out := applyPlan(t, c, "app.py", "x = 1   \ny = 2\t\nz = 3\n")
	assert.Equal(t, "x = 1\ny = 2\nz = 3\n", out)
}

func TestEOFNewlineFixer(t *testing.T) {
	c := NewEOFNewlineFixer()
	out := applyPlan(t, c, "app.py", "x = 1\ny = 2")
	assert.Equal(t, "x = 1\ny = 2\n", out)

	edits, err := c.Plan("app.py", []byte("x = 1\n"))
	require.NoError(t, err)
	assert.Empty(t, edits, "already-terminated files need nothing")
}

func TestRegistryEffectsMerge(t *testing.T) {
	r := DefaultRegistry()

	single := r.EffectsFor([]string{rules.RuleTrailingWS})
	assert.True(t, single.StructurePreserving)

	merged := r.EffectsFor([]string{rules.RuleTrailingWS, rules.RuleUnsafeHTTP})
	assert.False(t, merged.StructurePreserving, "the union drops structure preservation")
	assert.True(t, merged.MayChangeAST)
}

func TestEditsForRange(t *testing.T) {
	edits := []types.Edit{
		{File: "f", StartLine: 3, EndLine: 3},
		{File: "f", StartLine: 10, EndLine: 12},
	}
	assert.Len(t, EditsForRange(edits, 1, 5), 1)
	assert.Len(t, EditsForRange(edits, 11, 11), 1)
	assert.Empty(t, EditsForRange(edits, 5, 9))
}
